package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"

	"github.com/Ventolus/crypto-snake-battle/internal/reward"
	"github.com/Ventolus/crypto-snake-battle/internal/signer"
)

var (
	ErrInvalidWallet  = errors.New("invalid wallet address")
	ErrInvalidScore   = errors.New("invalid score")
	ErrRewardTooSmall = errors.New("score too low for reward")
)

// Store covers the durable writes claim issuance performs, in order:
// cap reservation, then the accepted-submission log. Implemented by
// database.Repo.
type Store interface {
	ReserveDailyCaps(ctx context.Context, wallet, day string, amount, walletCap, globalCap *big.Int) error
	InsertScore(ctx context.Context, wallet string, score int64, reward *big.Int) error
}

type ClaimsParams struct {
	Store      Store
	Nonces     *NonceIssuer
	Signer     *signer.Signer
	Calculator *reward.Calculator
	MaxScore   int64
	WalletCap  *big.Int
	GlobalCap  *big.Int
	Window     time.Duration
	Log        *logrus.Logger
}

// Claims turns an untrusted (wallet, score) pair into a signed, single-use,
// time-bounded reward claim, or a typed rejection.
type Claims struct {
	store     Store
	nonces    *NonceIssuer
	signer    *signer.Signer
	calc      *reward.Calculator
	maxScore  int64
	walletCap *big.Int
	globalCap *big.Int
	window    time.Duration
	log       *logrus.Logger
	now       func() time.Time
}

func NewClaims(p ClaimsParams) *Claims {
	return &Claims{
		store:     p.Store,
		nonces:    p.Nonces,
		signer:    p.Signer,
		calc:      p.Calculator,
		maxScore:  p.MaxScore,
		walletCap: p.WalletCap,
		globalCap: p.GlobalCap,
		window:    p.Window,
		log:       p.Log,
		now:       time.Now,
	}
}

// ClaimPayload mirrors what the vault contract verifies. reward, nonce and
// deadline are decimal strings so no client rounds them through float64.
type ClaimPayload struct {
	Player   string `json:"player"`
	Score    int64  `json:"score"`
	Reward   string `json:"reward"`
	Nonce    string `json:"nonce"`
	Deadline string `json:"deadline"`
}

type SubmitResult struct {
	Claim     ClaimPayload `json:"claim"`
	Signature string       `json:"signature"`
}

// Submit runs the issuance sequence: validate, compute reward, reserve the
// daily caps, issue a nonce, sign, persist the submission.
//
// If a step after the cap reservation fails, the reservation is not rolled
// back: the wallet loses that quota for the day even though it never got a
// claim.
func (s *Claims) Submit(ctx context.Context, wallet string, score int64) (*SubmitResult, error) {
	if !common.IsHexAddress(wallet) {
		return nil, ErrInvalidWallet
	}
	if score < 0 || score > s.maxScore {
		return nil, ErrInvalidScore
	}
	player := common.HexToAddress(wallet)
	stored := strings.ToLower(player.Hex())

	amount := s.calc.Compute(score)
	if amount.Sign() == 0 {
		return nil, ErrRewardTooSmall
	}

	issuedAt := s.now().UTC()
	day := issuedAt.Format("2006-01-02")
	if err := s.store.ReserveDailyCaps(ctx, stored, day, amount, s.walletCap, s.globalCap); err != nil {
		return nil, err
	}

	nonce, err := s.nonces.Issue(ctx, stored)
	if err != nil {
		return nil, fmt.Errorf("issue nonce: %w", err)
	}

	deadline := issuedAt.Unix() + int64(s.window/time.Second)
	claim := signer.Claim{
		Player:   player,
		Score:    score,
		Reward:   amount,
		Nonce:    nonce,
		Deadline: deadline,
	}
	sig, err := s.signer.Sign(claim)
	if err != nil {
		return nil, fmt.Errorf("sign claim: %w", err)
	}

	if err := s.store.InsertScore(ctx, stored, score, amount); err != nil {
		return nil, fmt.Errorf("persist submission: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"wallet": stored,
		"score":  score,
		"reward": amount.String(),
	}).Info("claim issued")

	return &SubmitResult{
		Claim: ClaimPayload{
			Player:   player.Hex(),
			Score:    score,
			Reward:   amount.String(),
			Nonce:    nonce.String(),
			Deadline: strconv.FormatInt(deadline, 10),
		},
		Signature: hexutil.Encode(sig),
	}, nil
}
