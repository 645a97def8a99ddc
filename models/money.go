package models

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Money is a decimal amount rounded to cents. It is stored as a BSON
// Decimal128 so that $inc updates stay exact, and rendered in JSON as a
// string ("12.50").
type Money struct {
	decimal.Decimal
}

// ZeroMoney is the zero amount.
var ZeroMoney = Money{decimal.Zero}

// NewMoney builds a Money from a decimal, rounding to two places.
func NewMoney(d decimal.Decimal) Money {
	return Money{d.Round(2)}
}

// MoneyFromFloat is a convenience for settings and tests.
func MoneyFromFloat(f float64) Money {
	return NewMoney(decimal.NewFromFloat(f))
}

// ParseMoney parses a decimal string such as "25" or "12.50".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return NewMoney(d), nil
}

func (m Money) Add(o Money) Money { return NewMoney(m.Decimal.Add(o.Decimal)) }
func (m Money) Sub(o Money) Money { return NewMoney(m.Decimal.Sub(o.Decimal)) }
func (m Money) Neg() Money        { return NewMoney(m.Decimal.Neg()) }

// MulFloat multiplies by a plain factor such as a tier multiplier.
func (m Money) MulFloat(f float64) Money {
	return NewMoney(m.Decimal.Mul(decimal.NewFromFloat(f)))
}

// MulInt multiplies by a count, e.g. price per traveler.
func (m Money) MulInt(n int) Money {
	return NewMoney(m.Decimal.Mul(decimal.NewFromInt(int64(n))))
}

func (m Money) IsPositive() bool { return m.Decimal.IsPositive() }
func (m Money) IsZero() bool     { return m.Decimal.IsZero() }

// Equal compares amounts, ignoring representation differences.
func (m Money) Equal(o Money) bool { return m.Decimal.Equal(o.Decimal) }

func (m Money) LessThan(o Money) bool           { return m.Decimal.LessThan(o.Decimal) }
func (m Money) GreaterThan(o Money) bool        { return m.Decimal.GreaterThan(o.Decimal) }
func (m Money) GreaterThanOrEqual(o Money) bool { return m.Decimal.GreaterThanOrEqual(o.Decimal) }

func (m Money) String() string { return m.Decimal.StringFixed(2) }

// Decimal128 converts the amount for use in raw update documents ($inc).
func (m Money) Decimal128() primitive.Decimal128 {
	d, err := primitive.ParseDecimal128(m.String())
	if err != nil {
		// StringFixed always yields a parseable value.
		panic(err)
	}
	return d
}

// MarshalBSONValue implements bson.ValueMarshaler.
func (m Money) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(m.Decimal128())
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler. Older documents may
// hold doubles or integers.
func (m *Money) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Decimal128:
		d, err := decimal.NewFromString(raw.Decimal128().String())
		if err != nil {
			return err
		}
		*m = NewMoney(d)
	case bsontype.Double:
		*m = MoneyFromFloat(raw.Double())
	case bsontype.Int32:
		*m = NewMoney(decimal.NewFromInt32(raw.Int32()))
	case bsontype.Int64:
		*m = NewMoney(decimal.NewFromInt(raw.Int64()))
	case bsontype.String:
		parsed, err := ParseMoney(raw.StringValue())
		if err != nil {
			return err
		}
		*m = parsed
	case bsontype.Null, bsontype.Undefined:
		*m = ZeroMoney
	default:
		return fmt.Errorf("cannot decode %s into Money", t)
	}
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both "12.50" and 12.5.
func (m *Money) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*m = ZeroMoney
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := ParseMoney(s)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*m = NewMoney(d)
	return nil
}
