package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Ventolus/crypto-snake-battle/internal/database"
	"github.com/Ventolus/crypto-snake-battle/internal/service"
)

const maxLeaderboardLimit = 100

// Reader covers the read-only queries the public endpoints serve.
// Implemented by database.Repo.
type Reader interface {
	TopScores(ctx context.Context, limit int) ([]database.LeaderboardEntry, error)
	CountScores(ctx context.Context) (int64, error)
	GlobalDailyTotal(ctx context.Context, day string) (*big.Int, error)
}

type Handler struct {
	claims        *service.Claims
	reader        Reader
	walletCap     *big.Int
	globalCap     *big.Int
	tokenDecimals int
	log           *logrus.Logger
}

func NewHandler(claims *service.Claims, reader Reader, walletCap, globalCap *big.Int, tokenDecimals int, log *logrus.Logger) *Handler {
	return &Handler{
		claims:        claims,
		reader:        reader,
		walletCap:     walletCap,
		globalCap:     globalCap,
		tokenDecimals: tokenDecimals,
		log:           log,
	}
}

type submitRequest struct {
	Wallet string          `json:"wallet"`
	Score  json.RawMessage `json:"score"`
}

func (h *Handler) SubmitScore(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger(c).Warnf("invalid submit body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	// Score is kept raw so a fractional, quoted, or missing value is
	// rejected here rather than coerced by the JSON decoder. Wallet syntax
	// is the service's check.
	score, err := parseScore(req.Score)
	if err != nil {
		h.logger(c).Warnf("invalid score %q: %v", string(req.Score), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid score"})
		return
	}

	res, err := h.claims.Submit(c.Request.Context(), req.Wallet, score)
	if err != nil {
		h.rejectSubmit(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func parseScore(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, errors.New("score is required")
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

func (h *Handler) rejectSubmit(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidWallet):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
	case errors.Is(err, service.ErrInvalidScore):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid score"})
	case errors.Is(err, service.ErrRewardTooSmall):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Score too low for reward"})
	case errors.Is(err, database.ErrWalletCapExceeded), errors.Is(err, database.ErrGlobalCapExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Daily reward cap exceeded"})
	default:
		h.logger(c).Errorf("submit failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit := maxLeaderboardLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		if n < limit {
			limit = n
		}
	}

	entries, err := h.reader.TopScores(c.Request.Context(), limit)
	if err != nil {
		h.logger(c).Errorf("query leaderboard failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries, "total": len(entries)})
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	today := time.Now().UTC().Format("2006-01-02")

	totalGames, err := h.reader.CountScores(ctx)
	if err != nil {
		h.logger(c).Errorf("count scores failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	issuedToday, err := h.reader.GlobalDailyTotal(ctx, today)
	if err != nil {
		h.logger(c).Errorf("query global total failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	remaining := new(big.Int).Sub(h.globalCap, issuedToday)
	if remaining.Sign() < 0 {
		remaining = new(big.Int)
	}

	c.JSON(http.StatusOK, gin.H{
		"totalGames":              totalGames,
		"rewardsDistributedToday": h.formatUnits(issuedToday),
		"remainingRewardsToday":   h.formatUnits(remaining),
		"capPerWalletPerDay":      h.formatUnits(h.walletCap),
		"capGlobalPerDay":         h.formatUnits(h.globalCap),
	})
}

// formatUnits renders a base-unit amount as whole tokens, e.g. 2*10^18 -> "2".
func (h *Handler) formatUnits(amount *big.Int) string {
	return decimal.NewFromBigInt(amount, -int32(h.tokenDecimals)).String()
}

func (h *Handler) logger(c *gin.Context) *logrus.Entry {
	return h.log.WithField("request_id", c.GetString(requestIDKey))
}
