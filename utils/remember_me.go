package utils

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
)

// RememberMeTTL is how long remembered credentials are kept.
const RememberMeTTL = 30 * 24 * time.Hour

var (
	ErrRememberMeUnavailable = errors.New("remember me is not available")
	ErrRememberMeNotFound    = errors.New("remember me token not found or expired")
)

// RememberedCredentials represents the stored credentials for "Remember Me"
type RememberedCredentials struct {
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	UserType   string    `json:"userType"`
	UserID     string    `json:"userId"`
	ExpiresAt  time.Time `json:"expiresAt"`
	DeviceInfo string    `json:"deviceInfo"`
}

// RememberMeStore keeps AES-GCM encrypted credentials in Redis under
// remember_me:<token>.
type RememberMeStore struct {
	client *redis.Client
	key    []byte
}

// NewRememberMeStore derives a 32 byte key from secret. client may be nil,
// in which case every call returns ErrRememberMeUnavailable.
func NewRememberMeStore(client *redis.Client, secret string) *RememberMeStore {
	sum := sha256.Sum256([]byte(secret))
	return &RememberMeStore{client: client, key: sum[:]}
}

// Enabled reports whether a Redis client is configured.
func (s *RememberMeStore) Enabled() bool {
	return s != nil && s.client != nil
}

// GenerateRememberMeToken generates a secure token for "Remember Me"
func GenerateRememberMeToken() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Encrypt seals the credentials for storage
func (s *RememberMeStore) Encrypt(credentials RememberedCredentials) (string, error) {
	jsonData, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, jsonData, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt opens credentials produced by Encrypt
func (s *RememberMeStore) Decrypt(encryptedData string) (*RememberedCredentials, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		return nil, err
	}

	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}

	var credentials RememberedCredentials
	if err := json.Unmarshal(plaintext, &credentials); err != nil {
		return nil, err
	}
	return &credentials, nil
}

func (s *RememberMeStore) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Store saves encrypted credentials and returns the token that retrieves them.
func (s *RememberMeStore) Store(ctx context.Context, credentials RememberedCredentials) (string, error) {
	if !s.Enabled() {
		return "", ErrRememberMeUnavailable
	}

	token, err := GenerateRememberMeToken()
	if err != nil {
		return "", err
	}
	credentials.ExpiresAt = time.Now().Add(RememberMeTTL)

	encryptedData, err := s.Encrypt(credentials)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	if err := s.client.Set(ctx, rememberMeKey(token), encryptedData, RememberMeTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store in Redis: %w", err)
	}
	return token, nil
}

// Retrieve returns the credentials for token.
func (s *RememberMeStore) Retrieve(ctx context.Context, token string) (*RememberedCredentials, error) {
	if !s.Enabled() {
		return nil, ErrRememberMeUnavailable
	}

	key := rememberMeKey(token)
	encryptedData, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrRememberMeNotFound
		}
		return nil, fmt.Errorf("Redis error: %w", err)
	}

	credentials, err := s.Decrypt(encryptedData)
	if err != nil {
		s.client.Del(ctx, key)
		return nil, ErrRememberMeNotFound
	}

	if time.Now().After(credentials.ExpiresAt) {
		s.client.Del(ctx, key)
		return nil, ErrRememberMeNotFound
	}
	return credentials, nil
}

// Remove deletes the credentials for token.
func (s *RememberMeStore) Remove(ctx context.Context, token string) error {
	if !s.Enabled() {
		return ErrRememberMeUnavailable
	}
	if err := s.client.Del(ctx, rememberMeKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to remove from Redis: %w", err)
	}
	return nil
}

func rememberMeKey(token string) string {
	return fmt.Sprintf("remember_me:%s", token)
}
