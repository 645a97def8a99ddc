package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/HSouheill/travel_booking_backend/models"
)

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

// Settings holds everything read from the environment at startup.
type Settings struct {
	Port          string
	Env           string
	LogLevel      string
	StorageDriver string
	MongoURI      string
	DBName        string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	CORSAllowedOrigins []string
	AppBaseURL         string
	HSTSMaxAge         time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	FirebaseCredentialsBase64 string
	FirebaseCredentialsFile   string
	FirebaseProjectID         string

	AdminEmail    string
	AdminPassword string

	Referral ReferralSettings
}

// ReferralSettings configure the referral reward program.
type ReferralSettings struct {
	ReferrerReward  models.Money
	RefereeReward   models.Money
	Milestones      []Milestone
	Tiers           []TierThreshold
	TierMultipliers map[models.Tier]float64
	RequireApproval bool
	RewardTTL       time.Duration
	MinPayout       models.Money
	LinkWindow      time.Duration
}

// Milestone pays a one-off bonus when the referral count reaches Count.
type Milestone struct {
	Count  int
	Reward models.Money
}

// TierThreshold is the referral count from which a tier applies.
type TierThreshold struct {
	Tier     models.Tier
	MinCount int
}

const (
	defaultMilestones      = "5:50,10:120,25:400,50:1000,100:2500"
	defaultTiers           = "silver:5,gold:10,platinum:25,diamond:50"
	defaultTierMultipliers = "bronze:1,silver:1.1,gold:1.25,platinum:1.5,diamond:2"
)

// IsDevelopment reports whether ENV names a development environment.
func (s *Settings) IsDevelopment() bool {
	return s.Env == "development" || s.Env == "dev"
}

// SMTPEnabled reports whether outgoing email is configured.
func (s *Settings) SMTPEnabled() bool {
	return s.SMTPHost != "" && s.SMTPFrom != ""
}

// LoadSettings reads the environment. It fails on malformed values and on
// missing values production cannot run without.
func LoadSettings() (*Settings, error) {
	s := &Settings{
		Port:                      getEnv("PORT", "8080"),
		Env:                       getEnv("ENV", "production"),
		LogLevel:                  os.Getenv("LOG_LEVEL"),
		StorageDriver:             strings.ToLower(getEnv("STORAGE_DRIVER", StorageMongo)),
		MongoURI:                  os.Getenv("MONGO_URI"),
		DBName:                    getEnv("DB_NAME", "travel_booking"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		JWTSecret:                 os.Getenv("JWT_SECRET"),
		AppBaseURL:                strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:3000"), "/"),
		SMTPHost:                  os.Getenv("SMTP_HOST"),
		SMTPUsername:              os.Getenv("SMTP_USERNAME"),
		SMTPPassword:              os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:                  os.Getenv("SMTP_FROM"),
		FirebaseCredentialsBase64: os.Getenv("FIREBASE_CREDENTIALS_BASE64"),
		FirebaseCredentialsFile:   os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		FirebaseProjectID:         os.Getenv("FIREBASE_PROJECT_ID"),
		AdminEmail:                strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
		AdminPassword:             os.Getenv("ADMIN_PASSWORD"),
	}
	if s.MongoURI == "" {
		s.MongoURI = os.Getenv("MONGODB_URI")
	}

	var err error
	if s.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if s.SMTPPort, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if s.AccessTokenTTL, err = getDuration("JWT_ACCESS_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if s.RefreshTokenTTL, err = getDuration("JWT_REFRESH_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	hstsDefault := 365 * 24 * time.Hour
	if s.IsDevelopment() {
		hstsDefault = 0
	}
	if s.HSTSMaxAge, err = getDuration("HSTS_MAX_AGE", hstsDefault); err != nil {
		return nil, err
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				s.CORSAllowedOrigins = append(s.CORSAllowedOrigins, o)
			}
		}
	}

	switch s.StorageDriver {
	case StorageMongo:
		if s.MongoURI == "" {
			if !s.IsDevelopment() {
				return nil, fmt.Errorf("MONGO_URI or MONGODB_URI environment variable is required for production")
			}
			s.MongoURI = "mongodb://localhost:27017"
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageMongo, StorageMemory, s.StorageDriver)
	}

	if s.JWTSecret == "" {
		if !s.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required")
		}
		s.JWTSecret = "dev-only-secret"
	}

	if s.Referral, err = loadReferralSettings(); err != nil {
		return nil, err
	}
	return s, nil
}

func loadReferralSettings() (ReferralSettings, error) {
	var (
		r   ReferralSettings
		err error
	)
	if r.ReferrerReward, err = getMoney("REFERRAL_REFERRER_REWARD", "25"); err != nil {
		return r, err
	}
	if r.RefereeReward, err = getMoney("REFERRAL_REFEREE_REWARD", "10"); err != nil {
		return r, err
	}
	if r.MinPayout, err = getMoney("REFERRAL_MIN_PAYOUT", "50"); err != nil {
		return r, err
	}
	if r.Milestones, err = ParseMilestones(getEnv("REFERRAL_MILESTONES", defaultMilestones)); err != nil {
		return r, err
	}
	if r.Tiers, err = ParseTiers(getEnv("REFERRAL_TIERS", defaultTiers)); err != nil {
		return r, err
	}
	if r.TierMultipliers, err = ParseTierMultipliers(getEnv("REFERRAL_TIER_MULTIPLIERS", defaultTierMultipliers)); err != nil {
		return r, err
	}
	if r.RequireApproval, err = getBool("REFERRAL_REQUIRE_APPROVAL", true); err != nil {
		return r, err
	}
	ttlDays, err := getInt("REFERRAL_REWARD_TTL_DAYS", 365)
	if err != nil {
		return r, err
	}
	windowDays, err := getInt("REFERRAL_LINK_WINDOW_DAYS", 30)
	if err != nil {
		return r, err
	}
	if ttlDays < 0 || windowDays < 0 {
		return r, fmt.Errorf("referral day counts must not be negative")
	}
	r.RewardTTL = time.Duration(ttlDays) * 24 * time.Hour
	r.LinkWindow = time.Duration(windowDays) * 24 * time.Hour
	return r, nil
}

// DefaultReferralSettings returns the program defaults.
func DefaultReferralSettings() ReferralSettings {
	milestones, _ := ParseMilestones(defaultMilestones)
	tiers, _ := ParseTiers(defaultTiers)
	multipliers, _ := ParseTierMultipliers(defaultTierMultipliers)
	return ReferralSettings{
		ReferrerReward:  models.MoneyFromFloat(25),
		RefereeReward:   models.MoneyFromFloat(10),
		Milestones:      milestones,
		Tiers:           tiers,
		TierMultipliers: multipliers,
		RequireApproval: true,
		RewardTTL:       365 * 24 * time.Hour,
		MinPayout:       models.MoneyFromFloat(50),
		LinkWindow:      30 * 24 * time.Hour,
	}
}

// ParseMilestones parses "5:50,10:120" into milestones sorted by count.
func ParseMilestones(raw string) ([]Milestone, error) {
	var out []Milestone
	seen := map[int]bool{}
	for _, pair := range splitPairs(raw) {
		count, err := strconv.Atoi(pair[0])
		if err != nil || count <= 0 {
			return nil, fmt.Errorf("invalid milestone count %q", pair[0])
		}
		if seen[count] {
			return nil, fmt.Errorf("duplicate milestone %d", count)
		}
		seen[count] = true
		reward, err := models.ParseMoney(pair[1])
		if err != nil || !reward.IsPositive() {
			return nil, fmt.Errorf("invalid milestone reward %q", pair[1])
		}
		out = append(out, Milestone{Count: count, Reward: reward})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count < out[j].Count })
	return out, nil
}

// ParseTiers parses "silver:5,gold:10" into thresholds sorted ascending.
// Bronze always starts at zero.
func ParseTiers(raw string) ([]TierThreshold, error) {
	out := []TierThreshold{{Tier: models.TierBronze, MinCount: 0}}
	for _, pair := range splitPairs(raw) {
		tier := models.Tier(strings.ToLower(pair[0]))
		if !validTier(tier) || tier == models.TierBronze {
			return nil, fmt.Errorf("invalid tier %q", pair[0])
		}
		min, err := strconv.Atoi(pair[1])
		if err != nil || min <= 0 {
			return nil, fmt.Errorf("invalid threshold for tier %s: %q", tier, pair[1])
		}
		out = append(out, TierThreshold{Tier: tier, MinCount: min})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinCount < out[j].MinCount })
	for i := 1; i < len(out); i++ {
		if out[i].MinCount == out[i-1].MinCount {
			return nil, fmt.Errorf("tiers %s and %s share threshold %d", out[i-1].Tier, out[i].Tier, out[i].MinCount)
		}
	}
	return out, nil
}

// ParseTierMultipliers parses "bronze:1,gold:1.25". Tiers left out get 1.
func ParseTierMultipliers(raw string) (map[models.Tier]float64, error) {
	out := map[models.Tier]float64{}
	for _, pair := range splitPairs(raw) {
		tier := models.Tier(strings.ToLower(pair[0]))
		if !validTier(tier) {
			return nil, fmt.Errorf("invalid tier %q", pair[0])
		}
		f, err := strconv.ParseFloat(pair[1], 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid multiplier for tier %s: %q", tier, pair[1])
		}
		out[tier] = f
	}
	return out, nil
}

func validTier(t models.Tier) bool {
	switch t {
	case models.TierBronze, models.TierSilver, models.TierGold, models.TierPlatinum, models.TierDiamond:
		return true
	}
	return false
}

func splitPairs(raw string) [][2]string {
	var out [][2]string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		k, v, ok := strings.Cut(item, ":")
		if !ok {
			// kept so the caller reports the bad value
			out = append(out, [2]string{item, ""})
			continue
		}
		out = append(out, [2]string{strings.TrimSpace(k), strings.TrimSpace(v)})
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getMoney(key, def string) (models.Money, error) {
	m, err := models.ParseMoney(getEnv(key, def))
	if err != nil {
		return models.ZeroMoney, fmt.Errorf("invalid %s: %w", key, err)
	}
	if m.IsNegative() {
		return models.ZeroMoney, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return m, nil
}
