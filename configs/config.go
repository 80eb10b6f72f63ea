package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Sheets struct {
	SpreadsheetID      string
	ServiceAccountJSON string
	RequestsPerMinute  int
}

type Instagram struct {
	GraphBaseURL       string
	FormatHost         string
	PollInterval       time.Duration
	PollAttempts       int
	RequestTimeout     time.Duration
	DefaultScheduleTab string
}

type Config struct {
	Port         string
	LogLevel     string
	PostgresURI  string
	RedisURI     string
	SecretKey    string
	CookieName   string
	CronSecret   string
	CronSchedule string
	PollInterval time.Duration
	Timezone     string
	StoreBackend string
	XLSXPath     string
	Sheets       Sheets
	Instagram    Instagram
	R2           R2
}

func LoadConfig() *Config {
	return &Config{
		Port:         getEnv("PORT", "3000"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		PostgresURI:  getEnv("POSTGRES_URI", ""),
		RedisURI:     getEnv("REDIS_URI", ""),
		SecretKey:    getEnv("SECRET_KEY", ""),
		CookieName:   getEnv("COOKIE_NAME", "sheetflow_token"),
		CronSecret:   getEnv("CRON_SECRET", ""),
		CronSchedule: getEnv("CRON_SCHEDULE", ""),
		PollInterval: getEnvDuration("POLL_INTERVAL", 60*time.Second),
		Timezone:     getEnv("TIMEZONE", "UTC"),
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "sheets")),
		XLSXPath:     getEnv("XLSX_PATH", "schedule.xlsx"),
		Sheets: Sheets{
			SpreadsheetID:      getEnv("SPREADSHEET_ID", ""),
			ServiceAccountJSON: loadServiceAccountJSON(),
			RequestsPerMinute:  getEnvInt("SHEETS_REQUESTS_PER_MINUTE", 60),
		},
		Instagram: Instagram{
			GraphBaseURL:       getEnv("GRAPH_API_BASE_URL", "https://graph.facebook.com/v24.0"),
			FormatHost:         getEnv("MEDIA_FORMAT_HOST", "imagekit.io"),
			PollInterval:       getEnvDuration("CONTAINER_POLL_INTERVAL", 3*time.Second),
			PollAttempts:       getEnvInt("CONTAINER_POLL_ATTEMPTS", 20),
			RequestTimeout:     getEnvDuration("GRAPH_REQUEST_TIMEOUT", 30*time.Second),
			DefaultScheduleTab: getEnv("SHEET_TAB_NAME", "Schedules"),
		},
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  strings.TrimSuffix(getEnv("R2_PUBLIC_URL", ""), "/"),
		},
	}
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func loadServiceAccountJSON() string {
	if raw := getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""); raw != "" {
		return raw
	}
	path := getEnv("GOOGLE_SERVICE_ACCOUNT_JSON_FILE", "")
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
