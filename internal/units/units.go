// Package units converts quantities between compatible stock units.
// Three families are supported: mass (mg, g, kg), volume (ml, l) and
// count (un, dz). Conversion across families always fails.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownUnit       = errors.New("unknown unit")
	ErrIncompatibleUnits = errors.New("incompatible unit families")
)

type family int

const (
	familyMass family = iota
	familyVolume
	familyCount
)

type unitDef struct {
	family family
	// ratio to the family base unit (g, ml, un)
	ratio decimal.Decimal
}

var unitTable = map[string]unitDef{
	"mg": {familyMass, decimal.RequireFromString("0.001")},
	"g":  {familyMass, decimal.NewFromInt(1)},
	"kg": {familyMass, decimal.NewFromInt(1000)},
	"ml": {familyVolume, decimal.NewFromInt(1)},
	"l":  {familyVolume, decimal.NewFromInt(1000)},
	"un": {familyCount, decimal.NewFromInt(1)},
	"dz": {familyCount, decimal.NewFromInt(12)},
}

var unitAliases = map[string]string{
	"grama":   "g",
	"gramas":  "g",
	"quilo":   "kg",
	"litro":   "l",
	"litros":  "l",
	"unidade": "un",
	"unit":    "un",
	"duzia":   "dz",
	"dúzia":   "dz",
}

func Normalize(unit string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(unit))
	if alias, ok := unitAliases[u]; ok {
		u = alias
	}
	if _, ok := unitTable[u]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	return u, nil
}

// Convert returns qty expressed in the target unit. Same-unit calls
// return qty unchanged.
func Convert(qty decimal.Decimal, from string, to string) (decimal.Decimal, error) {
	fromUnit, err := Normalize(from)
	if err != nil {
		return decimal.Zero, err
	}
	toUnit, err := Normalize(to)
	if err != nil {
		return decimal.Zero, err
	}
	if fromUnit == toUnit {
		return qty, nil
	}

	fromDef := unitTable[fromUnit]
	toDef := unitTable[toUnit]
	if fromDef.family != toDef.family {
		return decimal.Zero, fmt.Errorf("%w: %s -> %s", ErrIncompatibleUnits, fromUnit, toUnit)
	}

	return qty.Mul(fromDef.ratio).Div(toDef.ratio), nil
}

// UnitsPerPurchase returns how many base-portion units one purchase
// unit holds, e.g. kg -> g yields 1000.
func UnitsPerPurchase(purchaseUnit string, basePortionUnit string) (decimal.Decimal, error) {
	return Convert(decimal.NewFromInt(1), purchaseUnit, basePortionUnit)
}

// CostPerBasePortion derives the cost of one recipe portion from a
// supplier price quoted per purchase unit.
func CostPerBasePortion(price decimal.Decimal, purchaseUnit string, basePortionQty decimal.Decimal, basePortionUnit string) (decimal.Decimal, error) {
	fromUnit, err := Normalize(purchaseUnit)
	if err != nil {
		return decimal.Zero, err
	}
	toUnit, err := Normalize(basePortionUnit)
	if err != nil {
		return decimal.Zero, err
	}
	if fromUnit == toUnit {
		return price.Mul(basePortionQty), nil
	}

	perPurchase, err := UnitsPerPurchase(fromUnit, toUnit)
	if err != nil {
		return decimal.Zero, err
	}
	if perPurchase.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: zero ratio %s -> %s", ErrIncompatibleUnits, fromUnit, toUnit)
	}
	return price.Div(perPurchase).Mul(basePortionQty), nil
}
