package main

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/Ventolus/crypto-snake-battle/internal/config"
	"github.com/Ventolus/crypto-snake-battle/internal/database"
	"github.com/Ventolus/crypto-snake-battle/internal/handlers"
	"github.com/Ventolus/crypto-snake-battle/internal/reward"
	"github.com/Ventolus/crypto-snake-battle/internal/service"
	"github.com/Ventolus/crypto-snake-battle/internal/signer"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	// Load .env file if it exists, but don't fail if it's missing (e.g. in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if !common.IsHexAddress(cfg.VaultAddress) {
		logger.Fatalf("REWARDS_VAULT_ADDRESS is not a valid address: %s", cfg.VaultAddress)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerKeyHex, "0x"))
	if err != nil {
		logger.Fatalf("parse SERVER_PRIVATE_KEY: %v", err)
	}

	db, err := initDB(cfg.PostgresURL)
	if err != nil {
		logger.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	repo := database.New(db, logger)
	sgn := signer.New(key, cfg.ChainID, common.HexToAddress(cfg.VaultAddress))
	logger.Infof("backend signer address: %s", sgn.Address().Hex())

	claims := service.NewClaims(service.ClaimsParams{
		Store:      repo,
		Nonces:     service.NewNonceIssuer(repo, logger),
		Signer:     sgn,
		Calculator: reward.NewCalculator(cfg.Difficulty, cfg.TokenDecimals),
		MaxScore:   cfg.MaxScore,
		WalletCap:  cfg.CapPerWalletDay,
		GlobalCap:  cfg.CapGlobalDay,
		Window:     cfg.ClaimWindow,
		Log:        logger,
	})

	h := handlers.NewHandler(claims, repo, cfg.CapPerWalletDay, cfg.CapGlobalDay, cfg.TokenDecimals, logger)

	rg := gin.Default()
	rg.Use(handlers.RequestID())
	rg.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	api := rg.Group("/api")
	api.POST("/score/submit", h.SubmitScore)
	api.GET("/leaderboard/top", h.GetLeaderboard)
	api.GET("/stats", h.GetStats)

	logger.Infof("server starting on :%s", cfg.Port)
	rg.Run(":" + cfg.Port)
}

func initDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}
