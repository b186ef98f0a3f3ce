// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, pool/reservation tuning,
// oracle and notifier credentials, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-donation-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// OracleConfig selects and configures the balance oracle used to verify
// payments against the chain. "etherscan" queries the Etherscan token-balance
// API; "rpc" reads the ERC-20 balanceOf directly over JSON-RPC.
type OracleConfig struct {
	Provider         string // ORACLE_PROVIDER: etherscan|rpc
	EtherscanAPIKey  string // ETHERSCAN_API_KEY
	EtherscanBaseURL string // ETHERSCAN_BASE_URL
	RPCEndpoint      string // ETH_RPC_ENDPOINT (only for provider=rpc)
	TokenContract    string // TOKEN_CONTRACT (ERC-20 token address)
	TokenDecimals    int    // TOKEN_DECIMALS (e.g. 6 for USDT)
}

// TelegramConfig holds credentials for the Telegram bot used both for the
// inbound webhook greeting and for outbound operator alerts.
type TelegramConfig struct {
	BotToken    string // TELEGRAM_BOT_TOKEN
	AdminChatID string // TELEGRAM_ADMIN_CHAT_ID
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Pool
	DBPath            string        // SQLite path
	SeedPath          string        // JSON pool seed; empty skips seeding
	Amounts           []int         // recognized denominations
	ReserveTTL        time.Duration // unconfirmed reservation window
	ClaimGrace        time.Duration // claim-to-verification grace period
	VerifyTolerance   float64       // accepted fraction of the expected amount
	LowStockThreshold int           // eligible-count floor before alerting
	StoreRetries      int           // bounded CAS retries on conflict
	VerifyOnClaim     bool          // verify synchronously on "paid"

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// External collaborators
	Oracle   OracleConfig
	Telegram TelegramConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		// Pool
		DBPath:            getenv("DB_PATH", "pool.db"),
		SeedPath:          getenv("LINKS_SEED_PATH", ""),
		Amounts:           splitInts(getenv("DENOMINATIONS", "100,200,300,400,500,600,700,800")),
		ReserveTTL:        getdur("RESERVE_TTL", 30*time.Second),
		ClaimGrace:        getdur("CLAIM_GRACE", 5*time.Minute),
		VerifyTolerance:   getfloat("VERIFY_TOLERANCE", 0.9),
		LowStockThreshold: getint("LOW_STOCK_THRESHOLD", 2),
		StoreRetries:      getint("STORE_RETRIES", 3),
		VerifyOnClaim:     getbool("VERIFY_ON_CLAIM", false),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// External collaborators
		Oracle: OracleConfig{
			Provider:         strings.ToLower(getenv("ORACLE_PROVIDER", "etherscan")),
			EtherscanAPIKey:  getenv("ETHERSCAN_API_KEY", ""),
			EtherscanBaseURL: getenv("ETHERSCAN_BASE_URL", "https://api.etherscan.io"),
			RPCEndpoint:      getenv("ETH_RPC_ENDPOINT", ""),
			// USDT on Ethereum mainnet.
			TokenContract: getenv("TOKEN_CONTRACT", "0xdAC17F958D2ee523a2206206994597C13D831ec7"),
			TokenDecimals: getint("TOKEN_DECIMALS", 6),
		},
		Telegram: TelegramConfig{
			BotToken:    getenv("TELEGRAM_BOT_TOKEN", ""),
			AdminChatID: getenv("TELEGRAM_ADMIN_CHAT_ID", ""),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-donation-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if len(cfg.Amounts) == 0 {
		return cfg, errors.New("DENOMINATIONS must list at least one amount")
	}
	for _, a := range cfg.Amounts {
		if a <= 0 {
			return cfg, errors.New("DENOMINATIONS must be positive integers")
		}
	}
	if cfg.ReserveTTL <= 0 || cfg.ClaimGrace <= 0 {
		return cfg, errors.New("RESERVE_TTL and CLAIM_GRACE must be positive durations")
	}
	if cfg.VerifyTolerance <= 0 || cfg.VerifyTolerance > 1 {
		return cfg, errors.New("VERIFY_TOLERANCE must be in (0,1]")
	}
	if cfg.LowStockThreshold < 0 {
		return cfg, errors.New("LOW_STOCK_THRESHOLD must be >= 0")
	}
	if cfg.StoreRetries < 1 {
		return cfg, errors.New("STORE_RETRIES must be >= 1")
	}
	switch cfg.Oracle.Provider {
	case "etherscan", "rpc":
	default:
		return cfg, errors.New("ORACLE_PROVIDER must be etherscan or rpc")
	}
	if cfg.Oracle.Provider == "rpc" && strings.TrimSpace(cfg.Oracle.RPCEndpoint) == "" {
		return cfg, errors.New("ETH_RPC_ENDPOINT must be set when ORACLE_PROVIDER=rpc")
	}
	if cfg.Oracle.TokenDecimals < 0 {
		return cfg, errors.New("TOKEN_DECIMALS must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// splitInts parses a CSV of integers, silently dropping malformed entries.
func splitInts(s string) []int {
	parts := splitCSV(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
