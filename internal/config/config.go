package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every setting of the program, loaded from environment
// variables. Optional integrations (Telegram, Supabase, Gemini) are enabled
// by setting their credentials and disabled otherwise.
type Config struct {
	// FunPay session
	GoldenKey      string
	UserAgent      string
	RequestTimeout int // seconds

	// Runner settings
	PollInterval           int // seconds
	DisableMessageRequests bool
	DisableOrderRequests   bool
	ResumeOnError          bool

	// Rule layer
	GreetingText     string // empty disables the first-contact greeting
	AutoResponseFile string
	AutoDeliveryFile string
	GoodsDir         string
	ReviewReply      string // empty disables the thank-you on confirmed orders

	// Lot raising
	AutoRaise     bool
	RaiseInterval int // minutes between raise sweeps

	// Telegram settings (optional)
	TelegramToken  string
	TelegramChatID int64

	// Supabase settings (optional)
	SupabaseURL     string
	SupabaseKey     string
	SupabaseTimeout int // seconds

	// Gemini API settings (optional)
	GeminiAPIKey  string
	GeminiTimeout int // seconds

	// App settings
	Timezone    string
	LogLevel    string
	Environment string
}

// Load loads configuration from environment variables
// It first attempts to load from .env file, then reads environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional, ignore error if not found)
	_ = godotenv.Load()

	config := &Config{
		// FunPay session
		GoldenKey:      getEnv("FUNPAY_GOLDEN_KEY", ""),
		UserAgent:      getEnv("FUNPAY_USER_AGENT", ""),
		RequestTimeout: getEnvInt("FUNPAY_REQUEST_TIMEOUT", 30),

		// Runner settings
		PollInterval:           getEnvInt("POLL_INTERVAL", 6),
		DisableMessageRequests: getEnvBool("DISABLE_MESSAGE_REQUESTS", false),
		DisableOrderRequests:   getEnvBool("DISABLE_ORDER_REQUESTS", false),
		ResumeOnError:          getEnvBool("RESUME_ON_ERROR", true),

		// Rule layer
		GreetingText:     getEnv("GREETING_TEXT", ""),
		AutoResponseFile: getEnv("AUTO_RESPONSE_FILE", "storage/auto_response.json"),
		AutoDeliveryFile: getEnv("AUTO_DELIVERY_FILE", "storage/auto_delivery.json"),
		GoodsDir:         getEnv("GOODS_DIR", "storage/goods"),
		ReviewReply:      getEnv("REVIEW_REPLY", ""),

		// Lot raising
		AutoRaise:     getEnvBool("AUTO_RAISE", false),
		RaiseInterval: getEnvInt("RAISE_INTERVAL", 10),

		// Telegram settings
		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getEnvInt64("TELEGRAM_CHAT_ID", 0),

		// Supabase settings
		SupabaseURL:     getEnv("SUPABASE_URL", ""),
		SupabaseKey:     getEnv("SUPABASE_KEY", ""),
		SupabaseTimeout: getEnvInt("SUPABASE_TIMEOUT", 10),

		// Gemini API settings
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiTimeout: getEnvInt("GEMINI_TIMEOUT", 30),

		// App settings
		Timezone:    getEnv("TIMEZONE", "Europe/Moscow"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("ENVIRONMENT", "production"),
	}

	// Validate configuration
	if err := validate(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// TelegramEnabled reports whether the Telegram integration is configured.
func (c *Config) TelegramEnabled() bool { return c.TelegramToken != "" }

// SupabaseEnabled reports whether the Supabase archive is configured.
func (c *Config) SupabaseEnabled() bool { return c.SupabaseURL != "" && c.SupabaseKey != "" }

// GeminiEnabled reports whether the Gemini smart-reply fallback is configured.
func (c *Config) GeminiEnabled() bool { return c.GeminiAPIKey != "" }

// validate checks if all required configuration values are set
func validate(cfg *Config) error {
	if cfg.GoldenKey == "" {
		return fmt.Errorf("FUNPAY_GOLDEN_KEY is required")
	}
	if cfg.UserAgent == "" {
		return fmt.Errorf("FUNPAY_USER_AGENT is required")
	}

	// Validate positive values
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %d", cfg.PollInterval)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("FUNPAY_REQUEST_TIMEOUT must be positive, got %d", cfg.RequestTimeout)
	}
	if cfg.RaiseInterval <= 0 {
		return fmt.Errorf("RAISE_INTERVAL must be positive, got %d", cfg.RaiseInterval)
	}
	if cfg.SupabaseTimeout <= 0 {
		return fmt.Errorf("SUPABASE_TIMEOUT must be positive, got %d", cfg.SupabaseTimeout)
	}
	if cfg.GeminiTimeout <= 0 {
		return fmt.Errorf("GEMINI_TIMEOUT must be positive, got %d", cfg.GeminiTimeout)
	}

	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if (cfg.SupabaseURL == "") != (cfg.SupabaseKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY must be set together")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error; got %s", cfg.LogLevel)
	}

	return nil
}

// getEnv retrieves environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves environment variable as integer or returns default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvInt64 retrieves environment variable as int64 or returns default value
func getEnvInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvBool retrieves environment variable as boolean or returns default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
