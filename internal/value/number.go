package value

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Number decodes the variable-length NUMBER wire format: an exponent byte
// followed by base-100 mantissa digits. Negative numbers store the
// complement of both and usually end with a 102 terminator.
func Number(b []byte) (decimal.Decimal, error) {
	if len(b) == 0 {
		return decimal.Zero, fmt.Errorf("empty number")
	}
	if b[0] == 0x80 {
		if len(b) != 1 {
			return decimal.Zero, fmt.Errorf("invalid zero number encoding % x", b)
		}
		return decimal.Zero, nil
	}

	negative := b[0]&0x80 == 0
	digits := b[1:]
	var exp int
	if negative {
		exp = int((^b[0])&0x7F) - 65
		if len(digits) > 0 && digits[len(digits)-1] == 102 {
			digits = digits[:len(digits)-1]
		}
	} else {
		exp = int(b[0]&0x7F) - 65
	}
	if len(digits) == 0 {
		return decimal.Zero, fmt.Errorf("number without mantissa % x", b)
	}

	mantissa := new(big.Int)
	hundred := big.NewInt(100)
	for _, d := range digits {
		var digit int
		if negative {
			digit = 101 - int(d)
		} else {
			digit = int(d) - 1
		}
		if digit < 0 || digit > 99 {
			return decimal.Zero, fmt.Errorf("invalid number digit 0x%02x in % x", d, b)
		}
		mantissa.Mul(mantissa, hundred)
		mantissa.Add(mantissa, big.NewInt(int64(digit)))
	}

	result := decimal.NewFromBigInt(mantissa, int32(2*(exp-(len(digits)-1))))
	if negative {
		result = result.Neg()
	}
	return result, nil
}

// NumberString renders a NUMBER column the way it is written to output.
func NumberString(b []byte) (string, error) {
	d, err := Number(b)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

// EncodeNumber produces the NUMBER wire format for d. It is the inverse of
// Number for values representable with at most 20 base-100 digits.
func EncodeNumber(d decimal.Decimal) []byte {
	if d.IsZero() {
		return []byte{0x80}
	}
	negative := d.Sign() < 0
	abs := d.Abs()

	// normalise to an even exponent so base-100 digits align
	coef := abs.Coefficient()
	exp := int(abs.Exponent())
	if exp%2 != 0 {
		coef.Mul(coef, big.NewInt(10))
		exp--
	}

	var digits []int
	hundred := big.NewInt(100)
	mod := new(big.Int)
	for coef.Sign() > 0 {
		coef.QuoRem(coef, hundred, mod)
		digits = append([]int{int(mod.Int64())}, digits...)
	}
	// trailing zero digits carry no information
	for len(digits) > 1 && digits[len(digits)-1] == 0 {
		digits = digits[:len(digits)-1]
		exp += 2
	}
	e := exp/2 + len(digits) - 1

	out := make([]byte, 0, len(digits)+2)
	if negative {
		out = append(out, ^byte(e+65+0x80))
		for _, dg := range digits {
			out = append(out, byte(101-dg))
		}
		if len(digits) < 20 {
			out = append(out, 102)
		}
		return out
	}
	out = append(out, byte(e+65)|0x80)
	for _, dg := range digits {
		out = append(out, byte(dg+1))
	}
	return out
}
