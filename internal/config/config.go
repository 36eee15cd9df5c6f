package config

import (
	"errors"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds the externally supplied client configuration. Nothing in the
// core logic hardcodes an endpoint or contract address.
type Config struct {
	Environment     string
	LedgerRPCURL    string
	ContractAddress string
	BackendBaseURL  string
	PushEndpoint    string
	CachePath       string

	WalletAddress string
	WalletKey     string

	HTTPTimeout      time.Duration
	ConfirmInterval  time.Duration
	ConfirmTimeout   time.Duration
	RefreshInterval  time.Duration
	FreeFormCategory bool
}

var contractAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:      getenv("APP_ENV", "development"),
		LedgerRPCURL:     os.Getenv("LEDGER_RPC_URL"),
		ContractAddress:  os.Getenv("PO_CONTRACT_ADDRESS"),
		BackendBaseURL:   os.Getenv("BACKEND_BASE_URL"),
		PushEndpoint:     os.Getenv("PUSH_ENDPOINT"),
		CachePath:        getenv("PO_CACHE_PATH", "po-cache.db"),
		WalletAddress:    os.Getenv("WALLET_ADDRESS"),
		WalletKey:        os.Getenv("WALLET_KEY"),
		HTTPTimeout:      getenvDuration("HTTP_TIMEOUT", 15*time.Second),
		ConfirmInterval:  getenvDuration("CONFIRM_INTERVAL", 2*time.Second),
		ConfirmTimeout:   getenvDuration("CONFIRM_TIMEOUT", 2*time.Minute),
		RefreshInterval:  getenvDuration("REFRESH_INTERVAL", 30*time.Second),
		FreeFormCategory: getenvBool("FREE_FORM_CATEGORY", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is complete and well-formed.
func (c *Config) Validate() error {
	var missing []string

	if c.LedgerRPCURL == "" {
		missing = append(missing, "LEDGER_RPC_URL")
	}
	if c.ContractAddress == "" {
		missing = append(missing, "PO_CONTRACT_ADDRESS")
	}
	if c.BackendBaseURL == "" {
		missing = append(missing, "BACKEND_BASE_URL")
	}
	if c.PushEndpoint == "" {
		missing = append(missing, "PUSH_ENDPOINT")
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if !contractAddressPattern.MatchString(c.ContractAddress) {
		return errors.New("PO_CONTRACT_ADDRESS must be a 0x-prefixed 40-digit hex address")
	}
	if !strings.HasPrefix(c.PushEndpoint, "ws://") && !strings.HasPrefix(c.PushEndpoint, "wss://") {
		return errors.New("PUSH_ENDPOINT must be a ws:// or wss:// URL")
	}

	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
