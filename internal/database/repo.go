package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var (
	ErrWalletCapExceeded = errors.New("wallet daily cap exceeded")
	ErrGlobalCapExceeded = errors.New("global daily cap exceeded")
	ErrNonceTaken        = errors.New("nonce already recorded")
)

const pqUniqueViolation = "23505"

type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

// ReserveDailyCaps atomically adds amount to both the per-wallet and the
// global aggregate for day, admitting only if neither cap is exceeded.
// Each scope is a single conditional upsert, so two concurrent reservations
// cannot both pass a check against a stale total; the row lock taken by
// ON CONFLICT DO UPDATE serializes them. Both increments share one
// transaction: a global-cap rejection rolls back the wallet increment, so
// there is never a partial admission.
func (r *Repo) ReserveDailyCaps(ctx context.Context, wallet, day string, amount, walletCap, globalCap *big.Int) error {
	// The upsert's WHERE clause only guards the update path; a fresh insert
	// must not itself exceed the cap.
	if amount.Cmp(walletCap) > 0 {
		return ErrWalletCapExceeded
	}
	if amount.Cmp(globalCap) > 0 {
		return ErrGlobalCapExceeded
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reservation: %w", err)
	}
	defer tx.Rollback()

	const walletQ = `
		INSERT INTO wallet_daily_rewards (wallet, day, total)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (wallet, day) DO UPDATE
		SET total = wallet_daily_rewards.total + EXCLUDED.total
		WHERE wallet_daily_rewards.total + EXCLUDED.total <= $4::numeric`
	res, err := tx.ExecContext(ctx, walletQ, wallet, day, amount.String(), walletCap.String())
	if err != nil {
		return fmt.Errorf("reserve wallet cap: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("reserve wallet cap: %w", err)
	} else if n == 0 {
		return ErrWalletCapExceeded
	}

	const globalQ = `
		INSERT INTO global_daily_rewards (day, total)
		VALUES ($1, $2::numeric)
		ON CONFLICT (day) DO UPDATE
		SET total = global_daily_rewards.total + EXCLUDED.total
		WHERE global_daily_rewards.total + EXCLUDED.total <= $3::numeric`
	res, err = tx.ExecContext(ctx, globalQ, day, amount.String(), globalCap.String())
	if err != nil {
		return fmt.Errorf("reserve global cap: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("reserve global cap: %w", err)
	} else if n == 0 {
		return ErrGlobalCapExceeded
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reservation: %w", err)
	}
	return nil
}

// InsertNonce appends to the nonce log. The unique index on nonce makes a
// collision surface as ErrNonceTaken instead of a silent reuse.
func (r *Repo) InsertNonce(ctx context.Context, wallet string, nonce *big.Int) error {
	const q = `INSERT INTO nonces (id, wallet, nonce, created_at) VALUES (gen_random_uuid(), $1, $2::numeric, now())`
	if _, err := r.db.ExecContext(ctx, q, wallet, nonce.String()); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrNonceTaken
		}
		return fmt.Errorf("insert nonce: %w", err)
	}
	return nil
}

// InsertScore appends an accepted submission. Records are never updated or
// deleted by this service.
func (r *Repo) InsertScore(ctx context.Context, wallet string, score int64, reward *big.Int) error {
	const q = `INSERT INTO scores (id, wallet, score, reward, created_at) VALUES (gen_random_uuid(), $1, $2, $3::numeric, now())`
	if _, err := r.db.ExecContext(ctx, q, wallet, score, reward.String()); err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	return nil
}

// TopScores returns each wallet's best score, highest first.
func (r *Repo) TopScores(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	const q = `
		SELECT wallet, score, created_at FROM (
			SELECT DISTINCT ON (wallet) wallet, score, created_at
			FROM scores
			ORDER BY wallet, score DESC, created_at ASC
		) best
		ORDER BY score DESC, created_at ASC
		LIMIT $1`
	rows, err := r.db.QueryxContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []LeaderboardEntry{}
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.StructScan(&e); err != nil {
			r.log.Warnf("scan leaderboard row failed: %v", err)
			continue
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r *Repo) CountScores(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM scores`); err != nil {
		return 0, err
	}
	return n, nil
}

// GlobalDailyTotal returns the base units issued on day, zero if no row yet.
func (r *Repo) GlobalDailyTotal(ctx context.Context, day string) (*big.Int, error) {
	var totalStr string
	err := r.db.GetContext(ctx, &totalStr, `SELECT total::text FROM global_daily_rewards WHERE day = $1`, day)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	total, ok := new(big.Int).SetString(totalStr, 10)
	if !ok {
		return nil, fmt.Errorf("malformed global total %q for day %s", totalStr, day)
	}
	return total, nil
}

// WalletDailyTotal is the audit counterpart of ReserveDailyCaps; issuance
// itself never reads totals back.
func (r *Repo) WalletDailyTotal(ctx context.Context, wallet, day string) (*big.Int, error) {
	var totalStr string
	err := r.db.GetContext(ctx, &totalStr, `SELECT total::text FROM wallet_daily_rewards WHERE wallet = $1 AND day = $2`, wallet, day)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	total, ok := new(big.Int).SetString(totalStr, 10)
	if !ok {
		return nil, fmt.Errorf("malformed wallet total %q for %s/%s", totalStr, wallet, day)
	}
	return total, nil
}
