package reward

import "math/big"

var hundred = big.NewInt(100)

// Calculator maps a validated game score to a token amount in base units.
// reward = floor(score * difficulty / 100) whole tokens, scaled by 10^decimals.
type Calculator struct {
	difficulty *big.Int
	scale      *big.Int
}

func NewCalculator(difficultyNumerator int64, decimals int) *Calculator {
	return &Calculator{
		difficulty: big.NewInt(difficultyNumerator),
		scale:      new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil),
	}
}

// Compute assumes score has already been range-checked by the caller.
// The result easily exceeds int64 once decimals are applied, so everything
// stays in math/big.
func (c *Calculator) Compute(score int64) *big.Int {
	amount := new(big.Int).Mul(big.NewInt(score), c.difficulty)
	amount.Div(amount, hundred)
	return amount.Mul(amount, c.scale)
}
