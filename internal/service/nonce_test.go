package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ventolus/crypto-snake-battle/internal/database"
)

func TestIssueNonceDistinctUnderConcurrency(t *testing.T) {
	store := newMemStore()
	issuer := NewNonceIssuer(store, testLogger())

	const n = 1000
	results := make(chan *big.Int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wallet := fmt.Sprintf("0x%040x", i%7)
			nonce, err := issuer.Issue(context.Background(), wallet)
			if err != nil {
				t.Errorf("issue nonce: %v", err)
				return
			}
			results <- nonce
		}(i)
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for nonce := range results {
		s := nonce.String()
		require.False(t, seen[s], "duplicate nonce %s", s)
		seen[s] = true
	}
	assert.Len(t, seen, n)
}

func TestIssueNoncePersistedBeforeReturn(t *testing.T) {
	store := newMemStore()
	issuer := NewNonceIssuer(store, testLogger())

	nonce, err := issuer.Issue(context.Background(), "0xabc")
	require.NoError(t, err)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, "0xabc", store.nonces[nonce.String()])
}

func TestIssueNonceWidth(t *testing.T) {
	store := newMemStore()
	issuer := NewNonceIssuer(store, testLogger())

	nonce, err := issuer.Issue(context.Background(), "0xabc")
	require.NoError(t, err)
	// timestamp<<64 | random: always wider than 64 bits.
	assert.Greater(t, nonce.BitLen(), 64)
}

func TestIssueNonceRetriesCollisionOnce(t *testing.T) {
	store := newMemStore()
	store.nonceErr = database.ErrNonceTaken
	store.nonceErrOnce = true
	issuer := NewNonceIssuer(store, testLogger())

	nonce, err := issuer.Issue(context.Background(), "0xabc")
	require.NoError(t, err)
	require.NotNil(t, nonce)
}

func TestIssueNonceFailsClosed(t *testing.T) {
	store := newMemStore()
	store.nonceErr = fmt.Errorf("connection refused")
	issuer := NewNonceIssuer(store, testLogger())

	nonce, err := issuer.Issue(context.Background(), "0xabc")
	require.Error(t, err)
	assert.Nil(t, nonce)
	assert.Empty(t, store.nonces)
}
