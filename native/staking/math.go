package staking

import "math/big"

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func isZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

func isNegative(v *big.Int) bool {
	return v != nil && v.Sign() < 0
}

// proRata returns total * part / whole using truncating division. A zero or
// missing whole yields zero, which is how an empty pool forfeits emission.
func proRata(total, part, whole *big.Int) *big.Int {
	if isZero(whole) || isZero(part) || isZero(total) {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(total, part)
	return share.Quo(share, whole)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
