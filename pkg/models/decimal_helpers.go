package models

import "github.com/shopspring/decimal"

// LamportsPerSol is the fixed-point scale between lamports and SOL.
const LamportsPerSol = 1_000_000_000

// ToFloat64 safely converts decimal to float64
func ToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// MustFloat64 converts decimal to float64. It never panics; an inexact
// conversion returns the nearest float64.
func MustFloat64(d decimal.Decimal) float64 {
	f, exact := d.Float64()
	if !exact {
		// Most SOL amounts fit exactly in float64; callers round for display.
	}
	return f
}

// LamportsToSol converts an integer lamport amount into a decimal SOL value.
func LamportsToSol(lamports int64) decimal.Decimal {
	return decimal.New(lamports, 0).Div(decimal.New(LamportsPerSol, 0))
}

// SolToLamports converts a decimal SOL value into an integer lamport amount,
// rounding to the nearest lamport.
func SolToLamports(sol decimal.Decimal) int64 {
	return sol.Mul(decimal.New(LamportsPerSol, 0)).Round(0).IntPart()
}

