package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process configuration.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string // empty selects lite mode (SQLite under DataDir)
	DataDir     string

	// Ledger
	RPCURL           string
	ContractAddress  string
	ContractABIPath  string
	ChainID          int64
	SignerKeys       []string
	KeystoreDir      string
	KeystorePassword string
	ConfirmDeadline  time.Duration

	// Content store
	ContentGatewayURL string

	// Wallet tokens
	JWTSecret string
	JWTTTL    time.Duration

	// Identity reservation; empty keeps reservations in memory.
	RedisAddr string
	// IDStrategy is "time" (default) or "uuid".
	IDStrategy string

	// Purchase receipts; empty SMTPHost disables mail.
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	ExplorerURL  string // transaction link prefix in receipts

	ReconcileInterval time.Duration
	RateLimitRPS      float64

	OTelEnabled  bool
	OTelEndpoint string
}

// Load loads configuration from environment variables. When DEPLOYMENT_PROFILE names a
// YAML file, its values replace the built-in defaults; env vars still win.
func Load() (*Config, error) {
	d := &Deployment{}
	if path := os.Getenv("DEPLOYMENT_PROFILE"); path != "" {
		loaded, err := LoadDeployment(path)
		if err != nil {
			return nil, err
		}
		d = loaded
	}

	cfg := &Config{
		Port:        getenv("PORT", "8080"),
		LogLevel:    getenv("LOG_LEVEL", "INFO"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DataDir:     getenv("DATA_DIR", "data"),

		RPCURL:           getenv("RPC_URL", or(d.RPCURL, "http://127.0.0.1:8545")),
		ContractAddress:  getenv("CONTRACT_ADDRESS", d.Contract.Address),
		ContractABIPath:  getenv("CONTRACT_ABI_PATH", d.Contract.ABIPath),
		KeystoreDir:      getenv("KEYSTORE_DIR", d.KeystoreDir),
		KeystorePassword: os.Getenv("KEYSTORE_PASSWORD"),
		SignerKeys:       splitList(os.Getenv("SIGNER_PRIVATE_KEYS")),

		ContentGatewayURL: strings.TrimRight(getenv("CONTENT_GATEWAY_URL", or(d.ContentGatewayURL, "http://localhost:8080")), "/"),

		JWTSecret:  os.Getenv("JWT_SECRET"),
		RedisAddr:  os.Getenv("REDIS_ADDR"),
		IDStrategy: getenv("ID_STRATEGY", "time"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getenv("SMTP_FROM", "no-reply@productledger.local"),
		ExplorerURL:  os.Getenv("EXPLORER_TX_URL"),

		OTelEnabled:  os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	var err error
	chainDefault := int64(31337)
	if d.ChainID != 0 {
		chainDefault = d.ChainID
	}
	if cfg.ChainID, err = getInt64("CHAIN_ID", chainDefault); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	confirmDefault := 2 * time.Minute
	if d.ConfirmDeadline > 0 {
		confirmDefault = d.ConfirmDeadline
	}
	if cfg.ConfirmDeadline, err = getDuration("CONFIRM_DEADLINE", confirmDefault); err != nil {
		return nil, err
	}
	if cfg.JWTTTL, err = getDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = getDuration("RECONCILE_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getFloat("RATE_LIMIT_RPS", 10); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings the ledger-facing server cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.ContractAddress == "" {
		missing = append(missing, "CONTRACT_ADDRESS")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(c.SignerKeys) == 0 && c.KeystoreDir == "" {
		missing = append(missing, "SIGNER_PRIVATE_KEYS or KEYSTORE_DIR")
	}
	if c.IDStrategy != "time" && c.IDStrategy != "uuid" {
		return fmt.Errorf("config: ID_STRATEGY must be time or uuid, got %q", c.IDStrategy)
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
