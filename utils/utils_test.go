package utils

import (
	"bytes"
	"context"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGenerateReferralCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateReferralCode(UserType)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(code, "USR-"), code)
		assert.Len(t, code, 10)
		assert.True(t, IsReferralCodeFormat(code), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestNormalizeReferralCode(t *testing.T) {
	assert.Equal(t, "USR-ABC234", NormalizeReferralCode("  usr-abc234 "))
	assert.False(t, IsReferralCodeFormat("USR-ABC1"))
	assert.False(t, IsReferralCodeFormat("usr-abc234"))
}

func TestReferralLink(t *testing.T) {
	assert.Equal(t, "https://trips.example/register?ref=USR-AAAAAA", ReferralLink("https://trips.example/", "USR-AAAAAA"))
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "hello", SanitizeInput("  hello \x00"))
	assert.Equal(t, "a  b", SanitizeInput("a <script>alert(1)</script> b"))
	assert.Equal(t, "&lt;b&gt;bold&lt;/b&gt;", SanitizeInput("<b>bold</b>"))
}

func TestSanitizeEmail(t *testing.T) {
	email, err := SanitizeEmail("  Jane.Doe@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", email)

	_, err = SanitizeEmail("not-an-email")
	assert.Error(t, err)
}

func TestSanitizePhone(t *testing.T) {
	phone, err := SanitizePhone("+961 (3) 123-456")
	require.NoError(t, err)
	assert.Equal(t, "+9613123456", phone)

	phone, err = SanitizePhone("  ")
	require.NoError(t, err)
	assert.Empty(t, phone)

	_, err = SanitizePhone("123")
	assert.Error(t, err)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "paris-in-spring-2025", Slugify("  Paris in Spring, 2025! "))
	assert.Equal(t, "beirut", Slugify("Beirut"))
	assert.Equal(t, "", Slugify("!!!"))
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
}

func TestGenerateQRCodePNG(t *testing.T) {
	data, err := GenerateQRCodePNG("https://trips.example/register?ref=USR-AAAAAA", 200)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())

	url, err := GenerateQRCodeDataURL("x", DefaultQRSize)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
}

func TestRememberMeEncryptDecrypt(t *testing.T) {
	store := NewRememberMeStore(nil, "secret")
	creds := RememberedCredentials{Email: "a@b.co", UserID: "abc", UserType: "customer", ExpiresAt: time.Now().Add(time.Hour).UTC()}

	sealed, err := store.Encrypt(creds)
	require.NoError(t, err)

	opened, err := store.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, creds.Email, opened.Email)
	assert.Equal(t, creds.UserID, opened.UserID)

	other := NewRememberMeStore(nil, "another secret")
	_, err = other.Decrypt(sealed)
	assert.Error(t, err)
}

func TestRememberMeWithoutRedis(t *testing.T) {
	store := NewRememberMeStore(nil, "secret")
	assert.False(t, store.Enabled())

	_, err := store.Store(context.Background(), RememberedCredentials{})
	assert.ErrorIs(t, err, ErrRememberMeUnavailable)
	_, err = store.Retrieve(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrRememberMeUnavailable)
}

func TestTokenBlacklistInMemory(t *testing.T) {
	ctx := context.Background()
	bl := NewTokenBlacklist(nil, zap.NewNop())

	assert.False(t, bl.Contains(ctx, "t1"))
	bl.Add(ctx, "t1", time.Now().Add(time.Hour))
	bl.Add(ctx, "t2", time.Now().Add(-time.Hour))
	assert.True(t, bl.Contains(ctx, "t1"))
	assert.False(t, bl.Contains(ctx, "t2"))

	assert.Equal(t, 0, bl.Cleanup(time.Now()))
	assert.Equal(t, 1, bl.Cleanup(time.Now().Add(2*time.Hour)))
	assert.False(t, bl.Contains(ctx, "t1"))
}

func TestLockerLocal(t *testing.T) {
	ctx := context.Background()
	l := NewLocker(nil)

	release, ok, err := l.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	_, ok, err = l.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
