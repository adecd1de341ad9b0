package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port           string
	Environment    string
	LogLevel       string
	AllowedOrigins []string

	// Persistence and fan-out. Empty disables the sink.
	DatabaseURL  string
	AMQPURL      string
	AMQPExchange string

	// Chain custody. Without RPCURL the process runs on in-memory ledgers.
	RPCURL    string
	ChainID   int64
	SignerKey string
	// CustodyAddress is only read in memory mode; on chain custody is the
	// signer's address.
	CustodyAddress common.Address

	// Ledger
	Owner          common.Address
	FeePool        common.Address
	Tokens         []TokenConfig
	NativeDecimals int32
}

// TokenConfig is one entry of SUPPORTED_TOKENS.
type TokenConfig struct {
	Address    common.Address
	Decimals   int32
	FeeBearing bool
}

// MemoryMode reports whether no chain endpoint is configured.
func (c *Config) MemoryMode() bool {
	return c.RPCURL == ""
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Decimals returns the configured precision of token, falling back to the
// native precision for unknown tokens.
func (c *Config) Decimals(token common.Address) int32 {
	for _, t := range c.Tokens {
		if t.Address == token {
			return t.Decimals
		}
	}
	return c.NativeDecimals
}

// Load reads .env (if present), an optional config.yaml and the process
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", "http://localhost:3000")
	v.SetDefault("database_url", "")
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "ticketing")
	v.SetDefault("rpc_url", "")
	v.SetDefault("chain_id", 84532)
	v.SetDefault("signer_key", "")
	v.SetDefault("custody_address", "")
	v.SetDefault("owner_address", "")
	v.SetDefault("fee_pool_address", "")
	v.SetDefault("supported_tokens", "")
	v.SetDefault("native_decimals", 18)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Port:           v.GetString("port"),
		Environment:    v.GetString("environment"),
		LogLevel:       v.GetString("log_level"),
		AllowedOrigins: splitList(v.GetString("allowed_origins")),
		DatabaseURL:    v.GetString("database_url"),
		AMQPURL:        v.GetString("amqp_url"),
		AMQPExchange:   v.GetString("amqp_exchange"),
		RPCURL:         v.GetString("rpc_url"),
		ChainID:        v.GetInt64("chain_id"),
		SignerKey:      v.GetString("signer_key"),
		NativeDecimals: v.GetInt32("native_decimals"),
	}

	var err error
	if cfg.Owner, err = parseAddress("OWNER_ADDRESS", v.GetString("owner_address")); err != nil {
		return nil, err
	}
	if cfg.FeePool, err = parseAddress("FEE_POOL_ADDRESS", v.GetString("fee_pool_address")); err != nil {
		return nil, err
	}
	if cfg.Tokens, err = ParseTokens(v.GetString("supported_tokens")); err != nil {
		return nil, err
	}

	if cfg.MemoryMode() {
		if cfg.CustodyAddress, err = parseAddress("CUSTODY_ADDRESS", v.GetString("custody_address")); err != nil {
			return nil, err
		}
	} else if cfg.SignerKey == "" {
		return nil, errors.New("SIGNER_KEY is required when RPC_URL is set")
	}

	return cfg, nil
}

func parseAddress(key, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, fmt.Errorf("%s is required", key)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", key, value)
	}
	addr := common.HexToAddress(value)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s must not be the zero address", key)
	}
	return addr, nil
}

// ParseTokens parses a comma separated list of address:decimals[:fee].
func ParseTokens(raw string) ([]TokenConfig, error) {
	var tokens []TokenConfig
	for _, entry := range splitList(raw) {
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("SUPPORTED_TOKENS: malformed entry %q", entry)
		}
		if !common.IsHexAddress(parts[0]) {
			return nil, fmt.Errorf("SUPPORTED_TOKENS: invalid address %q", parts[0])
		}
		decimals, err := strconv.ParseInt(parts[1], 10, 32)
		if err != nil || decimals < 0 || decimals > 77 {
			return nil, fmt.Errorf("SUPPORTED_TOKENS: invalid decimals in %q", entry)
		}
		tc := TokenConfig{
			Address:  common.HexToAddress(parts[0]),
			Decimals: int32(decimals),
		}
		if len(parts) == 3 {
			if parts[2] != "fee" {
				return nil, fmt.Errorf("SUPPORTED_TOKENS: unknown flag %q", parts[2])
			}
			tc.FeeBearing = true
		}
		tokens = append(tokens, tc)
	}
	return tokens, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
