package segment

import (
	"strconv"
	"strings"

	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
)

// CellKey addresses one cell of a Segment: one ordinal per axis, indexing
// into that axis' sorted Keys array.
type CellKey []int

func (k CellKey) pack() string {
	var b strings.Builder
	for i, o := range k {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(o))
	}
	return b.String()
}

// DensityThreshold is the fraction of the full cross-product that must be
// populated before a dataset is stored densely.
const DensityThreshold = 0.5

// Dataset maps a CellKey to a measure Value. Both the dense and sparse
// representations support identical interrogation and range iteration.
type Dataset interface {
	Get(k CellKey) (olap.Value, bool)
	Set(k CellKey, v olap.Value)
	Len() int
	ForEach(fn func(k CellKey, v olap.Value) bool)
}

// ChooseRepresentation picks dense storage when populated/total density is
// at least DensityThreshold, else sparse.
func ChooseRepresentation(axisLens []int, populated int) Dataset {
	total := 1
	for _, l := range axisLens {
		total *= l
	}
	if total > 0 && float64(populated)/float64(total) >= DensityThreshold {
		return newDenseDataset(axisLens)
	}
	return newSparseDataset()
}

// denseDataset is a flat array indexed by a mixed-radix encoding of the
// CellKey, one radix per axis length.
type denseDataset struct {
	axisLens []int
	values   []olap.Value
	present  []bool
}

func newDenseDataset(axisLens []int) *denseDataset {
	total := 1
	for _, l := range axisLens {
		total *= l
	}
	return &denseDataset{
		axisLens: append([]int(nil), axisLens...),
		values:   make([]olap.Value, total),
		present:  make([]bool, total),
	}
}

func (d *denseDataset) flatIndex(k CellKey) int {
	idx := 0
	for i, o := range k {
		idx = idx*d.axisLens[i] + o
	}
	return idx
}

func (d *denseDataset) Get(k CellKey) (olap.Value, bool) {
	i := d.flatIndex(k)
	if i < 0 || i >= len(d.values) || !d.present[i] {
		return olap.Null, false
	}
	return d.values[i], true
}

func (d *denseDataset) Set(k CellKey, v olap.Value) {
	i := d.flatIndex(k)
	d.values[i] = v
	d.present[i] = true
}

func (d *denseDataset) Len() int {
	n := 0
	for _, p := range d.present {
		if p {
			n++
		}
	}
	return n
}

func (d *denseDataset) ForEach(fn func(k CellKey, v olap.Value) bool) {
	key := make([]int, len(d.axisLens))
	var rec func(axis, flat int) bool
	rec = func(axis, flat int) bool {
		if axis == len(d.axisLens) {
			if !d.present[flat] {
				return true
			}
			return fn(append(CellKey(nil), key...), d.values[flat])
		}
		for o := 0; o < d.axisLens[axis]; o++ {
			key[axis] = o
			if !rec(axis+1, flat*d.axisLens[axis]+o) {
				return false
			}
		}
		return true
	}
	rec(0, 0)
}

// sparseDataset stores only populated cells, keyed by the packed CellKey.
type sparseDataset struct {
	values map[string]olap.Value
	keys   map[string]CellKey
}

func newSparseDataset() *sparseDataset {
	return &sparseDataset{values: make(map[string]olap.Value), keys: make(map[string]CellKey)}
}

func (d *sparseDataset) Get(k CellKey) (olap.Value, bool) {
	v, ok := d.values[k.pack()]
	return v, ok
}

func (d *sparseDataset) Set(k CellKey, v olap.Value) {
	p := k.pack()
	d.values[p] = v
	d.keys[p] = append(CellKey(nil), k...)
}

func (d *sparseDataset) Len() int { return len(d.values) }

func (d *sparseDataset) ForEach(fn func(k CellKey, v olap.Value) bool) {
	for p, v := range d.values {
		if !fn(d.keys[p], v) {
			return
		}
	}
}
