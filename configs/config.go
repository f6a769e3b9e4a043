package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type OpenAI struct {
	APIKey  string
	Model   string
	BaseURL string
}

type Platforms struct {
	FacebookGraphURL  string
	InstagramGraphURL string
	TwitterAPIURL     string
	// RequestsPerSecond throttles every adapter independently.
	RequestsPerSecond float64
}

type Automation struct {
	SchedulerInterval   time.Duration
	DispatchConcurrency int
	DueBatchSize        int
	PublishTimeout      time.Duration
	LeaseDuration       time.Duration
	MaxRetries          int
	RecentErrorLimit    int
	RetentionAge        time.Duration

	// OperatingTimezone drives the wall-clock maintenance triggers.
	OperatingTimezone string
	DailyContentHour  int
	WeeklyReportDay   time.Weekday
	BillingHour       int
	CleanupHour       int
}

type Config struct {
	PostgresURI string
	RedisURI    string
	ListenAddr  string
	FrontendURL string
	R2          R2
	OpenAI      OpenAI
	Platforms   Platforms
	Automation  Automation
	SecretKey   string

	// EncryptionKey decrypts stored platform tokens (16, 24 or 32 bytes).
	// Empty means tokens are stored in the clear.
	EncryptionKey      string
	CookieName         string
	NotifyWebhookURL   string
	PlansFile          string
	GoogleClientID     string
	GoogleClientSecret string
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", ""),
		ListenAddr:  getEnv("LISTEN_ADDR", ":3000"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		OpenAI: OpenAI{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
		},
		Platforms: Platforms{
			FacebookGraphURL:  getEnv("FACEBOOK_GRAPH_URL", "https://graph.facebook.com/v21.0"),
			InstagramGraphURL: getEnv("INSTAGRAM_GRAPH_URL", "https://graph.instagram.com/v21.0"),
			TwitterAPIURL:     getEnv("TWITTER_API_URL", "https://api.twitter.com/2"),
			RequestsPerSecond: getEnvFloat("PLATFORM_REQUESTS_PER_SECOND", 5),
		},
		Automation: Automation{
			SchedulerInterval:   getEnvDuration("SCHEDULER_INTERVAL", time.Minute),
			DispatchConcurrency: getEnvInt("DISPATCH_CONCURRENCY", 10),
			DueBatchSize:        getEnvInt("DUE_BATCH_SIZE", 100),
			PublishTimeout:      getEnvDuration("PUBLISH_TIMEOUT", 30*time.Second),
			LeaseDuration:       getEnvDuration("PROCESSING_LEASE", 10*time.Minute),
			MaxRetries:          getEnvInt("MAX_RETRIES", 3),
			RecentErrorLimit:    getEnvInt("RECENT_ERROR_LIMIT", 50),
			RetentionAge:        getEnvDuration("RETENTION_AGE", 30*24*time.Hour),
			OperatingTimezone:   getEnv("OPERATING_TIMEZONE", "Asia/Karachi"),
			DailyContentHour:    getEnvInt("DAILY_CONTENT_HOUR", 6),
			WeeklyReportDay:     time.Weekday(getEnvInt("WEEKLY_REPORT_DAY", int(time.Monday))),
			BillingHour:         getEnvInt("BILLING_HOUR", 0),
			CleanupHour:         getEnvInt("CLEANUP_HOUR", 3),
		},
		SecretKey:          getEnv("SECRET_KEY", ""),
		EncryptionKey:      getEnv("TOKEN_ENCRYPTION_KEY", ""),
		CookieName:         getEnv("COOKIE_NAME", "postflow_session"),
		NotifyWebhookURL:   getEnv("NOTIFY_WEBHOOK_URL", ""),
		PlansFile:          getEnv("PLANS_FILE", ""),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
