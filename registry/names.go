package registry

import (
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/params"
)

const (
	// Suffix is appended to names for display. It is never sent to the
	// contract.
	Suffix = ".magic"

	// MinNameLength is the shortest name the registry accepts.
	MinNameLength = 3
)

// Price tiers in wei.
var (
	priceShort  = big.NewInt(5 * params.Ether / 10)
	priceMedium = big.NewInt(3 * params.Ether / 10)
	priceLong   = big.NewInt(params.Ether / 10)
)

// NameLength returns the length of a name in characters.
func NameLength(name string) int {
	return utf8.RuneCountInString(name)
}

// ValidateName checks the minimum name length.
func ValidateName(name string) error {
	if n := NameLength(name); n < MinNameLength {
		return fmt.Errorf("%w: %q has %d characters, need at least %d",
			ErrNameTooShort, name, n, MinNameLength)
	}

	return nil
}

// Price returns the registration fee for a name in wei: 0.5 for three
// characters, 0.3 for four and 0.1 for anything longer.
func Price(name string) (*big.Int, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	switch NameLength(name) {
	case 3:
		return new(big.Int).Set(priceShort), nil
	case 4:
		return new(big.Int).Set(priceMedium), nil
	default:
		return new(big.Int).Set(priceLong), nil
	}
}

// FormatPrice renders a wei amount in whole native units, e.g. "0.5".
func FormatPrice(wei *big.Int) string {
	if wei == nil {
		return "0"
	}

	units := new(big.Rat).SetFrac(wei, big.NewInt(params.Ether))
	s := units.FloatString(18)
	s = strings.TrimRight(s, "0")

	return strings.TrimSuffix(s, ".")
}

// DisplayName returns the name with the display suffix.
func DisplayName(name string) string {
	return name + Suffix
}
