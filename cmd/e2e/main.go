package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/Ventolus/crypto-snake-battle/internal/signer"
)

const baseURL = "http://localhost:8080"

// Smoke test against a running server: submits a score, verifies the
// returned signature against the configured signer key, then checks the
// read endpoints.
func main() {
	_ = godotenv.Load()

	keyHex := os.Getenv("SERVER_PRIVATE_KEY")
	vault := os.Getenv("REWARDS_VAULT_ADDRESS")
	if keyHex == "" || vault == "" {
		log.Fatal("SERVER_PRIVATE_KEY and REWARDS_VAULT_ADDRESS are required")
	}
	chainID := int64(84532)
	if v := os.Getenv("CHAIN_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Fatalf("CHAIN_ID must be an integer: %v", err)
		}
		chainID = n
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		log.Fatalf("parse key: %v", err)
	}
	sgn := signer.New(key, chainID, common.HexToAddress(vault))

	// Wait for server to start
	time.Sleep(2 * time.Second)

	checkEndpoint("GET", "/health", nil, 200)

	wallet := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	body := submitScore(wallet, 250)

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
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Fatalf("decode submit response: %v", err)
	}

	rewardAmt, ok := new(big.Int).SetString(resp.Claim.Reward, 10)
	if !ok {
		log.Fatalf("bad reward %q", resp.Claim.Reward)
	}
	nonce, ok := new(big.Int).SetString(resp.Claim.Nonce, 10)
	if !ok {
		log.Fatalf("bad nonce %q", resp.Claim.Nonce)
	}
	deadline, ok := new(big.Int).SetString(resp.Claim.Deadline, 10)
	if !ok {
		log.Fatalf("bad deadline %q", resp.Claim.Deadline)
	}

	sig, err := hexutil.Decode(resp.Signature)
	if err != nil {
		log.Fatalf("decode signature: %v", err)
	}
	recovered, err := sgn.Verify(signer.Claim{
		Player:   common.HexToAddress(resp.Claim.Player),
		Score:    resp.Claim.Score,
		Reward:   rewardAmt,
		Nonce:    nonce,
		Deadline: deadline.Int64(),
	}, sig)
	if err != nil {
		log.Fatalf("verify signature: %v", err)
	}
	if recovered != sgn.Address() {
		log.Fatalf("signature recovers %s, expected %s", recovered.Hex(), sgn.Address().Hex())
	}
	fmt.Printf("Claim for %s tokens verified (signer %s)\n",
		decimal.NewFromBigInt(rewardAmt, -18).String(), recovered.Hex())

	checkEndpoint("GET", "/api/leaderboard/top?limit=10", nil, 200)
	checkEndpoint("GET", "/api/stats", nil, 200)

	// Malformed inputs
	checkEndpoint("POST", "/api/score/submit", map[string]interface{}{"wallet": "not-an-address", "score": 250}, 400)
	checkEndpoint("POST", "/api/score/submit", map[string]interface{}{"wallet": wallet, "score": -5}, 400)

	fmt.Println("ALL TESTS PASSED")
}

func submitScore(wallet string, score int64) []byte {
	fmt.Printf("Submitting score %d for %s...\n", score, wallet)
	reqBody, _ := json.Marshal(map[string]interface{}{"wallet": wallet, "score": score})
	resp, err := http.Post(baseURL+"/api/score/submit", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		log.Fatalf("Expected status 200, got %d. Body: %s", resp.StatusCode, string(body))
	}
	fmt.Printf("Response: %s\n", string(body))
	return body
}

func checkEndpoint(method, path string, body interface{}, expectedStatus int) {
	fmt.Printf("Testing %s %s...\n", method, path)
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, baseURL+path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		log.Fatalf("Expected status %d, got %d. Body: %s", expectedStatus, resp.StatusCode, string(respBody))
	}
	fmt.Printf("Response: %s\n", string(respBody))
}
