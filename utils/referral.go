package utils

import (
	"crypto/rand"
	"encoding/base32"
	"regexp"
	"strings"
)

// ReferralType is the prefix of a referral code
type ReferralType string

const (
	UserType ReferralType = "USR"
)

var referralCodePattern = regexp.MustCompile(`^[A-Z]{2,4}-[A-Z2-7]{6}$`)

// GenerateReferralCode generates a referral code for the specified prefix
// Format: {TYPE}-{RANDOM} where RANDOM is 6 base32 characters
// Example: USR-ABC234
func GenerateReferralCode(entityType ReferralType) (string, error) {
	// 4 random bytes give 7 base32 characters, we keep 6
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}

	randomStr := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(randomBytes)
	return string(entityType) + "-" + randomStr[:6], nil
}

// NormalizeReferralCode trims and upper-cases user supplied codes.
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsReferralCodeFormat reports whether code looks like a generated code.
func IsReferralCodeFormat(code string) bool {
	return referralCodePattern.MatchString(code)
}

// ReferralLink builds the shareable signup link for a code.
func ReferralLink(baseURL, code string) string {
	return strings.TrimRight(baseURL, "/") + "/register?ref=" + code
}
