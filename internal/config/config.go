package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"
)

type Config struct {
	PostgresURL     string
	Port            string
	ChainID         int64
	VaultAddress    string
	SignerKeyHex    string
	Difficulty      int64
	TokenDecimals   int
	MaxScore        int64
	ClaimWindow     time.Duration
	CapPerWalletDay *big.Int
	CapGlobalDay    *big.Int
}

// Load reads the service configuration from the environment. Caps are given
// in whole tokens and scaled to base units using TOKEN_DECIMALS.
func Load() (*Config, error) {
	cfg := &Config{
		PostgresURL:  os.Getenv("POSTGRES_URL"),
		Port:         getEnv("PORT", "8080"),
		VaultAddress: os.Getenv("REWARDS_VAULT_ADDRESS"),
		SignerKeyHex: os.Getenv("SERVER_PRIVATE_KEY"),
	}
	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("POSTGRES_URL is required")
	}
	if cfg.VaultAddress == "" {
		return nil, fmt.Errorf("REWARDS_VAULT_ADDRESS is required")
	}
	if cfg.SignerKeyHex == "" {
		return nil, fmt.Errorf("SERVER_PRIVATE_KEY is required")
	}

	var err error
	if cfg.ChainID, err = getEnvInt64("CHAIN_ID", 84532); err != nil {
		return nil, err
	}
	if cfg.Difficulty, err = getEnvInt64("DIFFICULTY_NUMERATOR", 1); err != nil {
		return nil, err
	}
	if cfg.MaxScore, err = getEnvInt64("MAX_SCORE", 100000); err != nil {
		return nil, err
	}
	decimals, err := getEnvInt64("TOKEN_DECIMALS", 18)
	if err != nil {
		return nil, err
	}
	cfg.TokenDecimals = int(decimals)

	windowSecs, err := getEnvInt64("CLAIM_WINDOW_SECONDS", 600)
	if err != nil {
		return nil, err
	}
	cfg.ClaimWindow = time.Duration(windowSecs) * time.Second

	walletCap, err := getEnvInt64("CAP_PER_WALLET_PER_DAY", 2000)
	if err != nil {
		return nil, err
	}
	globalCap, err := getEnvInt64("CAP_GLOBAL_PER_DAY", 200000)
	if err != nil {
		return nil, err
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil)
	cfg.CapPerWalletDay = new(big.Int).Mul(big.NewInt(walletCap), scale)
	cfg.CapGlobalDay = new(big.Int).Mul(big.NewInt(globalCap), scale)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
