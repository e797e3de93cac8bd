package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	domainName    = "CryptoSnakeRewards"
	domainVersion = "1"
)

// claimTypes is the typed-data schema the rewards vault verifies on-chain.
// Field order matters: it is part of the type hash.
var claimTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Claim": {
		{Name: "player", Type: "address"},
		{Name: "score", Type: "uint256"},
		{Name: "reward", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
}

// Claim is the record a signature authorizes: player may pull reward base
// units from the vault once, identified by nonce, before deadline.
type Claim struct {
	Player   common.Address
	Score    int64
	Reward   *big.Int
	Nonce    *big.Int
	Deadline int64
}

// Signer produces EIP-712 signatures over Claims. The domain binds the
// target chain id and vault address, so a signature issued for one
// deployment cannot be replayed against another.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	vault   common.Address
}

func New(key *ecdsa.PrivateKey, chainID int64, vault common.Address) *Signer {
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		vault:   vault,
	}
}

// Address returns the address on-chain verifiers must expect to recover.
func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) typedData(c Claim) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       claimTypes,
		PrimaryType: "Claim",
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			Version:           domainVersion,
			ChainId:           (*math.HexOrDecimal256)(s.chainID),
			VerifyingContract: s.vault.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"player":   c.Player.Hex(),
			"score":    (*math.HexOrDecimal256)(big.NewInt(c.Score)),
			"reward":   (*math.HexOrDecimal256)(c.Reward),
			"nonce":    (*math.HexOrDecimal256)(c.Nonce),
			"deadline": (*math.HexOrDecimal256)(big.NewInt(c.Deadline)),
		},
	}
}

func (s *Signer) digest(c Claim) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(s.typedData(c))
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return hash, nil
}

// Sign returns a 65-byte [R || S || V] signature with V in {27, 28},
// the convention Solidity's ecrecover expects.
func (s *Signer) Sign(c Claim) ([]byte, error) {
	digest, err := s.digest(c)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// Verify recovers the address that signed the claim. Callers compare it to
// Address(); a tampered claim recovers some other address.
func (s *Signer) Verify(c Claim, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	digest, err := s.digest(c)
	if err != nil {
		return common.Address{}, err
	}
	recSig := make([]byte, 65)
	copy(recSig, sig)
	if recSig[64] >= 27 {
		recSig[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, recSig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
