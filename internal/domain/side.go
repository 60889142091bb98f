package domain

import "strings"

// Side es el lado de un mercado binario de Polymarket.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// ParseSide normaliza un string a Side. Acepta cualquier capitalización.
// Devuelve false si el valor no es YES ni NO.
func ParseSide(s string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES":
		return SideYes, true
	case "NO":
		return SideNo, true
	}
	return "", false
}

// Opposite devuelve el lado contrario.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// MarketImplied devuelve la probabilidad implícita del mercado para este lado
// dado el precio YES. Comprar NO a precio P significa que el mercado da a YES
// una probabilidad de 1-P.
func (s Side) MarketImplied(bucket float64) float64 {
	if s == SideYes {
		return bucket
	}
	return 1.0 - bucket
}
