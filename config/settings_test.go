package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSouheill/travel_booking_backend/models"
)

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("MONGO_URI", "")
	t.Setenv("MONGODB_URI", "")
	t.Setenv("JWT_SECRET", "")

	s, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "8080", s.Port)
	assert.Equal(t, StorageMemory, s.StorageDriver)
	assert.Equal(t, 24*time.Hour, s.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, s.RefreshTokenTTL)
	assert.NotEmpty(t, s.JWTSecret)

	r := s.Referral
	assert.Equal(t, "25.00", r.ReferrerReward.String())
	assert.Equal(t, "10.00", r.RefereeReward.String())
	assert.Equal(t, "50.00", r.MinPayout.String())
	assert.True(t, r.RequireApproval)
	assert.Equal(t, 365*24*time.Hour, r.RewardTTL)
	assert.Equal(t, 30*24*time.Hour, r.LinkWindow)
	require.Len(t, r.Milestones, 5)
	assert.Equal(t, 5, r.Milestones[0].Count)
	assert.Equal(t, "2500.00", r.Milestones[4].Reward.String())
	require.Len(t, r.Tiers, 5)
	assert.Equal(t, models.TierBronze, r.Tiers[0].Tier)
	assert.Equal(t, models.TierDiamond, r.Tiers[4].Tier)
	assert.Equal(t, 2.0, r.TierMultipliers[models.TierDiamond])
}

func TestLoadSettingsRequiresSecretsInProduction(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadSettings()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORAGE_DRIVER", "mongo")
	t.Setenv("MONGO_URI", "")
	t.Setenv("MONGODB_URI", "")
	_, err = LoadSettings()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MONGO_URI")

	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "mongodb://db:27017", s.MongoURI)
}

func TestLoadSettingsOverrides(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("JWT_ACCESS_TTL", "15m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("REFERRAL_REQUIRE_APPROVAL", "false")
	t.Setenv("REFERRAL_REFEREE_REWARD", "0")
	t.Setenv("REFERRAL_REWARD_TTL_DAYS", "0")
	t.Setenv("REFERRAL_MILESTONES", "10:100, 3:20")

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, s.AccessTokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, s.CORSAllowedOrigins)
	assert.False(t, s.Referral.RequireApproval)
	assert.True(t, s.Referral.RefereeReward.IsZero())
	assert.Equal(t, time.Duration(0), s.Referral.RewardTTL)
	require.Len(t, s.Referral.Milestones, 2)
	assert.Equal(t, 3, s.Referral.Milestones[0].Count)
}

func TestLoadSettingsRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"STORAGE_DRIVER":            "postgres",
		"JWT_ACCESS_TTL":            "forever",
		"REFERRAL_REFERRER_REWARD":  "-5",
		"REFERRAL_REQUIRE_APPROVAL": "maybe",
		"REFERRAL_REWARD_TTL_DAYS":  "-1",
		"REFERRAL_MILESTONES":       "5:50,5:60",
		"REFERRAL_TIERS":            "gold:10,copper:3",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("ENV", "development")
			t.Setenv("STORAGE_DRIVER", "memory")
			t.Setenv(key, value)
			_, err := LoadSettings()
			assert.Error(t, err)
		})
	}
}

func TestParseTiers(t *testing.T) {
	tiers, err := ParseTiers("gold:10,silver:5")
	require.NoError(t, err)
	assert.Equal(t, []TierThreshold{
		{Tier: models.TierBronze, MinCount: 0},
		{Tier: models.TierSilver, MinCount: 5},
		{Tier: models.TierGold, MinCount: 10},
	}, tiers)

	_, err = ParseTiers("silver:5,gold:5")
	assert.Error(t, err)
	_, err = ParseTiers("bronze:3")
	assert.Error(t, err)
}

func TestParseMilestonesRejectsMissingReward(t *testing.T) {
	_, err := ParseMilestones("5")
	assert.Error(t, err)
	_, err = ParseMilestones("0:10")
	assert.Error(t, err)
}

func TestMaskMongoURI(t *testing.T) {
	assert.Equal(t, "mongodb://admin:***@db:27017/x", maskMongoURI("mongodb://admin:pw@db:27017/x"))
	assert.Equal(t, "mongodb://localhost:27017", maskMongoURI("mongodb://localhost:27017"))
}
