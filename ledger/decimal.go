// Copyright (c) 2025 Fraunhofer AISEC
// Fraunhofer-Gesellschaft zur Foerderung der angewandten Forschung e.V.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ledger

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	ar "github.com/geid-rewards/geidpot/attestationreport"
)

// DecimalPlaces is the number of fractional digits of Decimal256
const DecimalPlaces = 18

var decimalFractional = uint256.NewInt(1_000_000_000_000_000_000)

// Decimal256 is an unsigned fixed-point decimal with 18 fractional digits,
// stored as its atomics (value * 10^18) in a 256-bit integer
type Decimal256 struct {
	atomics uint256.Int
}

// NewDecimal256 creates a decimal from its atomics
func NewDecimal256(atomics *uint256.Int) Decimal256 {
	var d Decimal256
	d.atomics.Set(atomics)
	return d
}

func DecimalOne() Decimal256 {
	return NewDecimal256(decimalFractional)
}

// DecimalFromRatio returns num / den
func DecimalFromRatio(num, den *uint256.Int) (Decimal256, error) {
	if den.IsZero() {
		return Decimal256{}, fmt.Errorf("%w: decimal ratio with zero denominator", ar.ErrDivisionByZero)
	}
	atomics, overflow := new(uint256.Int).MulDivOverflow(num, decimalFractional, den)
	if overflow {
		return Decimal256{}, fmt.Errorf("%w: decimal ratio %v/%v", ar.ErrArithmeticOverflow, num.Dec(), den.Dec())
	}
	return NewDecimal256(atomics), nil
}

func (d Decimal256) Atomics() *uint256.Int {
	return new(uint256.Int).Set(&d.atomics)
}

func (d Decimal256) IsZero() bool {
	return d.atomics.IsZero()
}

func (d Decimal256) Equal(o Decimal256) bool {
	return d.atomics.Eq(&o.atomics)
}

// DivUint returns d / u, truncated to 18 fractional digits
func (d Decimal256) DivUint(u *uint256.Int) (Decimal256, error) {
	if u.IsZero() {
		return Decimal256{}, fmt.Errorf("%w: decimal divided by zero", ar.ErrDivisionByZero)
	}
	return NewDecimal256(new(uint256.Int).Div(&d.atomics, u)), nil
}

// MulUint returns floor(u * d) using a 512-bit intermediate product
func MulUint(u *uint256.Int, d Decimal256) (*uint256.Int, error) {
	if u.IsZero() || d.IsZero() {
		return new(uint256.Int), nil
	}
	z, overflow := new(uint256.Int).MulDivOverflow(u, &d.atomics, decimalFractional)
	if overflow {
		return nil, fmt.Errorf("%w: %v * %v", ar.ErrArithmeticOverflow, u.Dec(), d)
	}
	return z, nil
}

// String formats the decimal without trailing fractional zeros, e.g. "0.01"
func (d Decimal256) String() string {
	whole := new(uint256.Int).Div(&d.atomics, decimalFractional)
	frac := new(uint256.Int).Mod(&d.atomics, decimalFractional)
	if frac.IsZero() {
		return whole.Dec()
	}
	f := frac.Dec()
	f = strings.Repeat("0", DecimalPlaces-len(f)) + f
	return whole.Dec() + "." + strings.TrimRight(f, "0")
}

// ParseDecimal256 parses a non-negative decimal with at most 18 fractional digits
func ParseDecimal256(s string) (Decimal256, error) {
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || (hasFrac && frac == "") {
		return Decimal256{}, fmt.Errorf("%w: invalid decimal %q", ar.ErrMalformedInput, s)
	}
	if len(frac) > DecimalPlaces {
		return Decimal256{}, fmt.Errorf("%w: decimal %q has more than %v fractional digits",
			ar.ErrMalformedInput, s, DecimalPlaces)
	}
	w, err := ParseUint256(whole)
	if err != nil {
		return Decimal256{}, err
	}
	atomics, overflow := new(uint256.Int).MulOverflow(w, decimalFractional)
	if overflow {
		return Decimal256{}, fmt.Errorf("%w: decimal %q", ar.ErrArithmeticOverflow, s)
	}
	if hasFrac {
		f, err := ParseUint256(frac + strings.Repeat("0", DecimalPlaces-len(frac)))
		if err != nil {
			return Decimal256{}, err
		}
		if _, overflow := atomics.AddOverflow(atomics, f); overflow {
			return Decimal256{}, fmt.Errorf("%w: decimal %q", ar.ErrArithmeticOverflow, s)
		}
	}
	return NewDecimal256(atomics), nil
}

// ParseUint256 parses a decimal string consisting of digits only
func ParseUint256(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty number", ar.ErrMalformedInput)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("%w: invalid number %q", ar.ErrMalformedInput, s)
		}
	}
	u, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: number %q: %v", ar.ErrArithmeticOverflow, s, err)
	}
	return u, nil
}
