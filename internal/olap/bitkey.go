package olap

import (
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

// BitKey is a fixed-width set of column bit positions. Two BitKeys are only
// meaningfully comparable when they address the same Star: column bit
// positions are assigned per-Star by ColumnOrdinal and never reused.
type BitKey struct {
	bits *roaring.Bitmap
}

// NewBitKey returns an empty BitKey.
func NewBitKey() BitKey {
	return BitKey{bits: roaring.New()}
}

// BitKeyOf builds a BitKey from a set of column bit positions.
func BitKeyOf(positions ...int) BitKey {
	bk := NewBitKey()
	for _, p := range positions {
		bk.Set(p)
	}
	return bk
}

func (b BitKey) ensure() *roaring.Bitmap {
	if b.bits == nil {
		return roaring.New()
	}
	return b.bits
}

// Set marks column bit position p as constrained.
func (b *BitKey) Set(p int) {
	if b.bits == nil {
		b.bits = roaring.New()
	}
	b.bits.Add(uint32(p))
}

// Clear unmarks column bit position p.
func (b *BitKey) Clear(p int) {
	if b.bits == nil {
		return
	}
	b.bits.Remove(uint32(p))
}

// Get reports whether column bit position p is set.
func (b BitKey) Get(p int) bool {
	if b.bits == nil {
		return false
	}
	return b.bits.Contains(uint32(p))
}

// IsEmpty reports whether no column is constrained.
func (b BitKey) IsEmpty() bool {
	return b.bits == nil || b.bits.IsEmpty()
}

// Cardinality returns the number of constrained columns.
func (b BitKey) Cardinality() int {
	if b.bits == nil {
		return 0
	}
	return int(b.bits.GetCardinality())
}

// Clone returns an independent copy.
func (b BitKey) Clone() BitKey {
	if b.bits == nil {
		return NewBitKey()
	}
	return BitKey{bits: b.bits.Clone()}
}

// And returns the intersection of b and other.
func (b BitKey) And(other BitKey) BitKey {
	return BitKey{bits: roaring.And(b.ensure(), other.ensure())}
}

// Or returns the union of b and other.
func (b BitKey) Or(other BitKey) BitKey {
	return BitKey{bits: roaring.Or(b.ensure(), other.ensure())}
}

// Intersects reports whether b and other share at least one bit.
func (b BitKey) Intersects(other BitKey) bool {
	return b.ensure().Intersects(other.ensure())
}

// IsSuperSetOf reports whether every bit set in other is also set in b.
func (b BitKey) IsSuperSetOf(other BitKey) bool {
	return int(b.ensure().AndCardinality(other.ensure())) == other.Cardinality()
}

// Equals reports structural equality.
func (b BitKey) Equals(other BitKey) bool {
	return b.ensure().Equals(other.ensure())
}

// Ordinals returns the sorted list of constrained bit positions.
func (b BitKey) Ordinals() []int {
	if b.bits == nil {
		return nil
	}
	arr := b.bits.ToArray()
	out := make([]int, len(arr))
	for i, v := range arr {
		out[i] = int(v)
	}
	return out
}

// String renders a deterministic, sorted representation suitable for use as
// part of an AggregationKey or for byte-identical SQL/log output.
func (b BitKey) String() string {
	ords := b.Ordinals()
	parts := make([]string, len(ords))
	for i, o := range ords {
		parts[i] = strconv.Itoa(o)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
