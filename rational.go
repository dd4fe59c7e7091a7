package imf

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Rational is an exact num/den pair. All composition-timeline arithmetic is
// performed on Rational; floating point is used only when formatting a
// value for a log line.
type Rational struct {
	r *big.Rat
}

// NewRational builds num/den, reduced to lowest terms. den must be non-zero.
func NewRational(num, den int64) Rational {
	if den == 0 {
		panic("imf: Rational denominator must be non-zero")
	}
	return Rational{r: big.NewRat(num, den)}
}

// Zero is the additive identity 0/1.
func Zero() Rational { return NewRational(0, 1) }

func (r Rational) ensure() *big.Rat {
	if r.r == nil {
		return big.NewRat(0, 1)
	}
	return r.r
}

// Num and Den return the reduced numerator and denominator.
func (r Rational) Num() int64 { return r.ensure().Num().Int64() }
func (r Rational) Den() int64 { return r.ensure().Denom().Int64() }

// Add returns r + other.
func (r Rational) Add(other Rational) Rational {
	out := new(big.Rat).Add(r.ensure(), other.ensure())
	return Rational{r: out}
}

// Sub returns r - other.
func (r Rational) Sub(other Rational) Rational {
	out := new(big.Rat).Sub(r.ensure(), other.ensure())
	return Rational{r: out}
}

// Mul returns r * other.
func (r Rational) Mul(other Rational) Rational {
	out := new(big.Rat).Mul(r.ensure(), other.ensure())
	return Rational{r: out}
}

// Inv returns 1/r. r must be non-zero.
func (r Rational) Inv() Rational {
	out := new(big.Rat).Inv(r.ensure())
	return Rational{r: out}
}

// Cmp returns -1, 0, or 1 as r is less than, equal to, or greater than other.
func (r Rational) Cmp(other Rational) int {
	return r.ensure().Cmp(other.ensure())
}

// Float64 converts to a float64, for logging only — never for control flow.
func (r Rational) Float64() float64 {
	f, _ := r.ensure().Float64()
	return f
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num(), r.Den())
}

// ReadRational reads "<num> <den>" (two whitespace-separated signed
// integers) from el's text (component 4.A read_rational).
func ReadRational(el Element) (Rational, error) {
	if el == nil {
		return Rational{}, fmt.Errorf("%w: missing element for rational", ErrInvalidData)
	}
	fields := strings.Fields(el.Text())
	if len(fields) != 2 {
		return Rational{}, fmt.Errorf("%w: rational %q must have exactly two fields", ErrInvalidData, el.Text())
	}
	num, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Rational{}, fmt.Errorf("%w: rational numerator %q: %v", ErrInvalidData, fields[0], err)
	}
	den, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Rational{}, fmt.Errorf("%w: rational denominator %q: %v", ErrInvalidData, fields[1], err)
	}
	if den == 0 {
		return Rational{}, fmt.Errorf("%w: rational denominator is zero", ErrInvalidData)
	}
	return NewRational(num, den), nil
}

// ReadULong reads an unsigned decimal integer fitting in 64 bits from el's
// text (component 4.A read_ulong).
func ReadULong(el Element) (uint64, error) {
	if el == nil {
		return 0, fmt.Errorf("%w: missing element for unsigned integer", ErrInvalidData)
	}
	text := strings.TrimSpace(el.Text())
	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unsigned integer %q: %v", ErrInvalidData, text, err)
	}
	return v, nil
}
