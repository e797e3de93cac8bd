package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ventolus/crypto-snake-battle/internal/database"
)

// NonceStore is the durable nonce log. Implemented by database.Repo.
type NonceStore interface {
	InsertNonce(ctx context.Context, wallet string, nonce *big.Int) error
}

// NonceIssuer hands out single-use claim identifiers. A nonce is the
// issuance time in nanoseconds shifted left 64 bits, OR-ed with 64 random
// bits, so it is unique across wallets even under bursty concurrent
// issuance and unpredictable to clients.
type NonceIssuer struct {
	store NonceStore
	log   *logrus.Logger
	now   func() time.Time
}

func NewNonceIssuer(store NonceStore, log *logrus.Logger) *NonceIssuer {
	return &NonceIssuer{store: store, log: log, now: time.Now}
}

// Issue persists the nonce before returning it: a nonce that is not in the
// log must never have been signed. A unique-index collision is retried once
// with fresh randomness, then given up on.
func (n *NonceIssuer) Issue(ctx context.Context, wallet string) (*big.Int, error) {
	for attempt := 0; ; attempt++ {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return nil, fmt.Errorf("read random: %w", err)
		}
		nonce := new(big.Int).SetInt64(n.now().UnixNano())
		nonce.Lsh(nonce, 64)
		nonce.Or(nonce, new(big.Int).SetUint64(binary.BigEndian.Uint64(buf[:])))

		err := n.store.InsertNonce(ctx, wallet, nonce)
		if err == nil {
			return nonce, nil
		}
		if errors.Is(err, database.ErrNonceTaken) && attempt == 0 {
			n.log.Warnf("nonce collision for %s, retrying", wallet)
			continue
		}
		return nil, fmt.Errorf("persist nonce: %w", err)
	}
}
