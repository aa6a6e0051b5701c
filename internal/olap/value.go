package olap

import (
	"fmt"
	"math"
)

// Kind distinguishes the numeric representations a measure cell can hold.
// Wider kinds (Double widest, then Decimal, then Int) win on addition, and
// Null never contaminates a sum: Value{Null}.Add(x) == x.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindDecimal
	KindDouble
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindDouble:
		return "double"
	default:
		return "unknown"
	}
}

// Value is a tagged numeric union. Decimal values are represented as an
// unscaled int64 plus a base-10 scale (unscaled * 10^-scale), avoiding the
// binary-float rounding that would otherwise leak into aggregated measures.
type Value struct {
	kind     Kind
	intVal   int64
	decUnsc  int64
	decScale int32
	dblVal   float64
}

// Null is the absent-measure sentinel.
var Null = Value{kind: KindNull}

func IntValue(v int64) Value { return Value{kind: KindInt, intVal: v} }

func DoubleValue(v float64) Value { return Value{kind: KindDouble, dblVal: v} }

// DecimalValue constructs a decimal equal to unscaled * 10^-scale.
func DecimalValue(unscaled int64, scale int32) Value {
	return Value{kind: KindDecimal, decUnsc: unscaled, decScale: scale}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Unscaled and Scale expose a Decimal's exact representation (unscaled *
// 10^-scale) for callers, such as the wire codec, that must round-trip a
// Decimal without routing it through Float64 and losing its kind.
func (v Value) Unscaled() int64 { return v.decUnsc }
func (v Value) Scale() int32    { return v.decScale }

// Float64 widens any non-null value to a float64, for display/range checks.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindNull:
		return 0
	case KindInt:
		return float64(v.intVal)
	case KindDecimal:
		return float64(v.decUnsc) / math.Pow10(int(v.decScale))
	case KindDouble:
		return v.dblVal
	default:
		return 0
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInt:
		return fmt.Sprintf("%d", v.intVal)
	case KindDecimal:
		return fmt.Sprintf("%v", v.Float64())
	case KindDouble:
		return fmt.Sprintf("%v", v.dblVal)
	default:
		return "?"
	}
}

func rescale(unscaled int64, fromScale, toScale int32) int64 {
	if fromScale == toScale {
		return unscaled
	}
	if toScale > fromScale {
		return unscaled * int64(math.Pow10(int(toScale-fromScale)))
	}
	return unscaled / int64(math.Pow10(int(fromScale-toScale)))
}

// Add combines two measure values following the widest-type-wins rule; a
// Null operand is the additive identity and never widens or narrows the
// result's Kind.
func (v Value) Add(other Value) Value {
	if v.kind == KindNull {
		return other
	}
	if other.kind == KindNull {
		return v
	}
	widest := v.kind
	if other.kind > widest {
		widest = other.kind
	}
	switch widest {
	case KindInt:
		return IntValue(v.intVal + other.intVal)
	case KindDecimal:
		scale := v.decScale
		if other.kind == KindDecimal && other.decScale > scale {
			scale = other.decScale
		}
		a := toDecimal(v, scale)
		b := toDecimal(other, scale)
		return DecimalValue(a+b, scale)
	case KindDouble:
		return DoubleValue(v.Float64() + other.Float64())
	default:
		return Null
	}
}

func toDecimal(v Value, scale int32) int64 {
	switch v.kind {
	case KindInt:
		return rescale(v.intVal, 0, scale)
	case KindDecimal:
		return rescale(v.decUnsc, v.decScale, scale)
	default:
		return int64(v.Float64() * math.Pow10(int(scale)))
	}
}

// Equal compares two values for exact equality within their own Kind; cross
// Kind comparisons (e.g. Int vs Double) compare by widened Float64 value.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		if v.kind == KindNull || other.kind == KindNull {
			return v.kind == other.kind
		}
		return v.Float64() == other.Float64()
	}
	switch v.kind {
	case KindNull:
		return true
	case KindInt:
		return v.intVal == other.intVal
	case KindDecimal:
		return v.Float64() == other.Float64()
	case KindDouble:
		return v.dblVal == other.dblVal
	default:
		return false
	}
}
