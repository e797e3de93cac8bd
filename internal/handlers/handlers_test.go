package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ventolus/crypto-snake-battle/internal/database"
	"github.com/Ventolus/crypto-snake-battle/internal/reward"
	"github.com/Ventolus/crypto-snake-battle/internal/service"
	"github.com/Ventolus/crypto-snake-battle/internal/signer"
)

const testWallet = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

type fakeStore struct {
	reserveErr error
}

func (f *fakeStore) ReserveDailyCaps(context.Context, string, string, *big.Int, *big.Int, *big.Int) error {
	return f.reserveErr
}

func (f *fakeStore) InsertScore(context.Context, string, int64, *big.Int) error { return nil }

func (f *fakeStore) InsertNonce(context.Context, string, *big.Int) error { return nil }

type fakeReader struct {
	entries     []database.LeaderboardEntry
	totalGames  int64
	issuedToday *big.Int
	gotLimit    int
}

func (f *fakeReader) TopScores(_ context.Context, limit int) ([]database.LeaderboardEntry, error) {
	f.gotLimit = limit
	return f.entries, nil
}

func (f *fakeReader) CountScores(context.Context) (int64, error) { return f.totalGames, nil }

func (f *fakeReader) GlobalDailyTotal(context.Context, string) (*big.Int, error) {
	if f.issuedToday == nil {
		return new(big.Int), nil
	}
	return f.issuedToday, nil
}

func tokens(n int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(n), scale)
}

func newTestRouter(t *testing.T, store *fakeStore, reader *fakeReader) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetOutput(io.Discard)

	key, err := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	sgn := signer.New(key, 84532, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"))

	claims := service.NewClaims(service.ClaimsParams{
		Store:      store,
		Nonces:     service.NewNonceIssuer(store, log),
		Signer:     sgn,
		Calculator: reward.NewCalculator(1, 18),
		MaxScore:   100000,
		WalletCap:  tokens(2000),
		GlobalCap:  tokens(200000),
		Window:     600 * time.Second,
		Log:        log,
	})
	h := NewHandler(claims, reader, tokens(2000), tokens(200000), 18, log)

	r := gin.New()
	r.Use(RequestID())
	api := r.Group("/api")
	api.POST("/score/submit", h.SubmitScore)
	api.GET("/leaderboard/top", h.GetLeaderboard)
	api.GET("/stats", h.GetStats)
	return r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitScoreOK(t *testing.T) {
	r := newTestRouter(t, &fakeStore{}, &fakeReader{})

	w := doJSON(r, http.MethodPost, "/api/score/submit", `{"wallet":"`+testWallet+`","score":250}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Claim struct {
			Player   string `json:"player"`
			Score    int64  `json:"score"`
			Reward   string `json:"reward"`
			Nonce    string `json:"nonce"`
			Deadline string `json:"deadline"`
		} `json:"claim"`
		Signature string `json:"signature"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, testWallet, resp.Claim.Player)
	assert.Equal(t, int64(250), resp.Claim.Score)
	assert.Equal(t, "2000000000000000000", resp.Claim.Reward)
	assert.NotEmpty(t, resp.Claim.Nonce)
	assert.NotEmpty(t, resp.Claim.Deadline)
	assert.Regexp(t, "^0x[0-9a-f]{130}$", resp.Signature)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSubmitScoreBadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"bad wallet", `{"wallet":"nope","score":250}`, "Invalid wallet address"},
		{"missing wallet", `{"score":250}`, "Invalid wallet address"},
		{"negative score", `{"wallet":"` + testWallet + `","score":-5}`, "Invalid score"},
		{"score above max", `{"wallet":"` + testWallet + `","score":100001}`, "Invalid score"},
		{"fractional score", `{"wallet":"` + testWallet + `","score":3.5}`, "Invalid score"},
		{"quoted score", `{"wallet":"` + testWallet + `","score":"250"}`, "Invalid score"},
		{"null score", `{"wallet":"` + testWallet + `","score":null}`, "Invalid score"},
		{"missing score", `{"wallet":"` + testWallet + `"}`, "Invalid score"},
		{"score before bad wallet", `{"score":250,"wallet":"nope"}`, "Invalid wallet address"},
		{"malformed body", `{"wallet":`, "Invalid request body"},
		{"low score", `{"wallet":"` + testWallet + `","score":50}`, "Score too low for reward"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(t, &fakeStore{}, &fakeReader{})
			w := doJSON(r, http.MethodPost, "/api/score/submit", tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), tc.want)
		})
	}
}

func TestSubmitScoreCapExceeded(t *testing.T) {
	for _, capErr := range []error{database.ErrWalletCapExceeded, database.ErrGlobalCapExceeded} {
		r := newTestRouter(t, &fakeStore{reserveErr: capErr}, &fakeReader{})
		w := doJSON(r, http.MethodPost, "/api/score/submit", `{"wallet":"`+testWallet+`","score":250}`)
		require.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "Daily reward cap exceeded")
	}
}

func TestSubmitScoreStorageFailure(t *testing.T) {
	r := newTestRouter(t, &fakeStore{reserveErr: assert.AnError}, &fakeReader{})
	w := doJSON(r, http.MethodPost, "/api/score/submit", `{"wallet":"`+testWallet+`","score":250}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
}

func TestLeaderboardLimitClamp(t *testing.T) {
	reader := &fakeReader{entries: []database.LeaderboardEntry{
		{Wallet: "0xaa", Score: 400, CreatedAt: time.Now()},
	}}
	r := newTestRouter(t, &fakeStore{}, reader)

	w := doJSON(r, http.MethodGet, "/api/leaderboard/top?limit=500", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxLeaderboardLimit, reader.gotLimit)

	w = doJSON(r, http.MethodGet, "/api/leaderboard/top?limit=7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, reader.gotLimit)

	w = doJSON(r, http.MethodGet, "/api/leaderboard/top?limit=zero", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStats(t *testing.T) {
	reader := &fakeReader{totalGames: 42, issuedToday: tokens(2)}
	r := newTestRouter(t, &fakeStore{}, reader)

	w := doJSON(r, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(42), resp["totalGames"])
	assert.Equal(t, "2", resp["rewardsDistributedToday"])
	assert.Equal(t, "199998", resp["remainingRewardsToday"])
	assert.Equal(t, "2000", resp["capPerWalletPerDay"])
	assert.Equal(t, "200000", resp["capGlobalPerDay"])
}
