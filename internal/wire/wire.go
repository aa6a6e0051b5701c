// Package wire implements the segment body/header interchange format used
// by the Cache Worker Pool's serialisation round-trip contract (spec P6):
// any header or body that cannot survive encode-then-decode fails fast at
// put time rather than silently corrupting a remote cache.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
	"github.com/CodeOnCoffee/mondrian-go/internal/segment"
)

// ErrNotSerializable is returned when a header or body fails the
// encode/decode round trip; the Cache Worker Pool treats this as fatal for
// that single put.
var ErrNotSerializable = errors.New("wire: value is not serializable")

// CompressionThresholdBytes is the encoded-body size above which the wire
// codec applies zstd compression.
const CompressionThresholdBytes = 4096

// opaquePredicate is the reconstruction of a ColumnPredicate after a header
// round-trips through the wire: it carries only the original predicate's
// rendered form. It is a permissive (always-true) predicate by design —
// headers recovered from an external cache are used to repopulate the
// Segment Index's coarse filters and to report header identity; precise
// predicate-level matching always happens against the live, in-process
// Header that the local Segment Loader produced, never a wire-recovered
// copy. This is documented as an explicit simplification, not an oversight.
type opaquePredicate struct{ rendered string }

func (p opaquePredicate) Evaluate(olap.Value) bool                     { return true }
func (p opaquePredicate) MightIntersect(olap.ColumnPredicate) bool      { return true }
func (p opaquePredicate) Minus(olap.ColumnPredicate) olap.ColumnPredicate { return p }
func (p opaquePredicate) EqualConstraint(other olap.ColumnPredicate) bool {
	o, ok := other.(opaquePredicate)
	return ok && o.rendered == p.rendered
}
func (p opaquePredicate) Or(other olap.ColumnPredicate) olap.ColumnPredicate  { return p }
func (p opaquePredicate) And(other olap.ColumnPredicate) olap.ColumnPredicate { return p }
func (p opaquePredicate) ValueSet() (map[olap.Value]struct{}, bool)          { return nil, false }
func (p opaquePredicate) String() string                                    { return p.rendered }

func writeString(w *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	w.Write(lenBuf[:])
	w.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeStrings(w *bytes.Buffer, ss []string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(ss)))
	w.Write(lenBuf[:])
	for _, s := range ss {
		writeString(w, s)
	}
}

func readStrings(r *bytes.Reader) ([]string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	out := make([]string, n)
	for i := range out {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// EncodeHeader renders a segment.Header as a tagged-tuple binary blob.
func EncodeHeader(h segment.Header) ([]byte, error) {
	var buf bytes.Buffer
	writeString(&buf, h.Star.SchemaName)
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], h.Star.SchemaChecksum)
	buf.Write(u64[:])
	writeString(&buf, h.Star.CubeName)
	writeString(&buf, h.Star.FactAlias)
	writeString(&buf, h.Measure)
	writeString(&buf, h.FactAlias)

	ords := h.ConstrainedColumns.Ordinals()
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(ords)))
	buf.Write(n[:])
	for _, o := range ords {
		var ob [4]byte
		binary.BigEndian.PutUint32(ob[:], uint32(o))
		buf.Write(ob[:])
	}

	cols := make([]string, len(h.PredicateSummaries))
	rendered := make([]string, len(h.PredicateSummaries))
	for i, s := range h.PredicateSummaries {
		cols[i] = s.ColumnName
		rendered[i] = s.Rendered
	}
	writeStrings(&buf, cols)
	writeStrings(&buf, rendered)

	writeString(&buf, h.CompoundPredicates.String())
	writeString(&buf, h.ExcludedRegions.String())

	return buf.Bytes(), nil
}

// DecodeHeader reverses EncodeHeader. The CompoundPredicates and
// ExcludedRegions fields on the returned Header use the permissive
// opaquePredicate reconstruction described above.
func DecodeHeader(b []byte) (segment.Header, error) {
	r := bytes.NewReader(b)
	var h segment.Header
	var err error
	if h.Star.SchemaName, err = readString(r); err != nil {
		return h, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	var u64 [8]byte
	if _, err = io.ReadFull(r, u64[:]); err != nil {
		return h, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	h.Star.SchemaChecksum = binary.BigEndian.Uint64(u64[:])
	if h.Star.CubeName, err = readString(r); err != nil {
		return h, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	if h.Star.FactAlias, err = readString(r); err != nil {
		return h, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	if h.Measure, err = readString(r); err != nil {
		return h, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	if h.FactAlias, err = readString(r); err != nil {
		return h, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}

	var n [4]byte
	if _, err = io.ReadFull(r, n[:]); err != nil {
		return h, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	count := binary.BigEndian.Uint32(n[:])
	bk := olap.NewBitKey()
	for i := uint32(0); i < count; i++ {
		var ob [4]byte
		if _, err = io.ReadFull(r, ob[:]); err != nil {
			return h, fmt.Errorf("%w: %v", ErrNotSerializable, err)
		}
		bk.Set(int(binary.BigEndian.Uint32(ob[:])))
	}
	h.ConstrainedColumns = bk

	cols, err := readStrings(r)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	rendered, err := readStrings(r)
	if err != nil || len(rendered) != len(cols) {
		return h, fmt.Errorf("%w: predicate summary arity mismatch", ErrNotSerializable)
	}
	h.PredicateSummaries = make([]segment.PredicateSummary, len(cols))
	for i := range cols {
		h.PredicateSummaries[i] = segment.PredicateSummary{ColumnName: cols[i], Rendered: rendered[i]}
	}

	compoundStr, err := readString(r)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	if compoundStr != "TRUE" {
		h.CompoundPredicates = olap.CompoundList{olap.CompoundPredicate{ByColumn: map[int]olap.ColumnPredicate{
			-1: opaquePredicate{rendered: compoundStr},
		}}}
	}
	excludedStr, err := readString(r)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	if excludedStr != "TRUE" {
		h.ExcludedRegions = olap.CompoundList{olap.CompoundPredicate{ByColumn: map[int]olap.ColumnPredicate{
			-1: opaquePredicate{rendered: excludedStr},
		}}}
	}
	return h, nil
}

// EncodeBody serialises a segment.Body (axis keys + populated cells),
// compressing with zstd once the raw encoding exceeds
// CompressionThresholdBytes.
func EncodeBody(body segment.Body) ([]byte, error) {
	var raw bytes.Buffer
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(body.AxisKeys)))
	raw.Write(n[:])
	for _, keys := range body.AxisKeys {
		binary.BigEndian.PutUint32(n[:], uint32(len(keys)))
		raw.Write(n[:])
		for _, v := range keys {
			writeValue(&raw, v)
		}
	}
	binary.BigEndian.PutUint32(n[:], uint32(len(body.Cells)))
	raw.Write(n[:])
	for _, c := range body.Cells {
		binary.BigEndian.PutUint32(n[:], uint32(len(c.Key)))
		raw.Write(n[:])
		for _, o := range c.Key {
			var ob [4]byte
			binary.BigEndian.PutUint32(ob[:], uint32(o))
			raw.Write(ob[:])
		}
		writeValue(&raw, c.Value)
	}

	if raw.Len() < CompressionThresholdBytes {
		return append([]byte{0}, raw.Bytes()...), nil
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(raw.Bytes(), nil)
	return append([]byte{1}, compressed...), nil
}

// DecodeBody reverses EncodeBody.
func DecodeBody(b []byte) (segment.Body, error) {
	if len(b) == 0 {
		return segment.Body{}, fmt.Errorf("%w: empty body", ErrNotSerializable)
	}
	tag, payload := b[0], b[1:]
	if tag == 1 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return segment.Body{}, fmt.Errorf("%w: %v", ErrNotSerializable, err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return segment.Body{}, fmt.Errorf("%w: %v", ErrNotSerializable, err)
		}
		payload = out
	}
	r := bytes.NewReader(payload)
	var body segment.Body
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return body, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	axisCount := binary.BigEndian.Uint32(n[:])
	body.AxisKeys = make([][]olap.Value, axisCount)
	for i := range body.AxisKeys {
		if _, err := io.ReadFull(r, n[:]); err != nil {
			return body, fmt.Errorf("%w: %v", ErrNotSerializable, err)
		}
		cnt := binary.BigEndian.Uint32(n[:])
		keys := make([]olap.Value, cnt)
		for j := range keys {
			v, err := readValue(r)
			if err != nil {
				return body, fmt.Errorf("%w: %v", ErrNotSerializable, err)
			}
			keys[j] = v
		}
		body.AxisKeys[i] = keys
	}
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return body, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	cellCount := binary.BigEndian.Uint32(n[:])
	body.Cells = make([]segment.Cell, cellCount)
	for i := range body.Cells {
		if _, err := io.ReadFull(r, n[:]); err != nil {
			return body, fmt.Errorf("%w: %v", ErrNotSerializable, err)
		}
		arity := binary.BigEndian.Uint32(n[:])
		key := make(segment.CellKey, arity)
		for j := range key {
			var ob [4]byte
			if _, err := io.ReadFull(r, ob[:]); err != nil {
				return body, fmt.Errorf("%w: %v", ErrNotSerializable, err)
			}
			key[j] = int(binary.BigEndian.Uint32(ob[:]))
		}
		v, err := readValue(r)
		if err != nil {
			return body, fmt.Errorf("%w: %v", ErrNotSerializable, err)
		}
		body.Cells[i] = segment.Cell{Key: key, Value: v}
	}
	return body, nil
}

func writeValue(w *bytes.Buffer, v olap.Value) {
	w.WriteByte(byte(v.Kind()))
	switch v.Kind() {
	case olap.KindInt:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(int64(v.Float64())))
		w.Write(b[:])
	case olap.KindDecimal:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Unscaled()))
		w.Write(b[:])
		var sb [4]byte
		binary.BigEndian.PutUint32(sb[:], uint32(v.Scale()))
		w.Write(sb[:])
	case olap.KindDouble:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v.Float64()))
		w.Write(b[:])
	}
}

func readValue(r *bytes.Reader) (olap.Value, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return olap.Null, err
	}
	switch olap.Kind(kindByte) {
	case olap.KindNull:
		return olap.Null, nil
	case olap.KindInt:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return olap.Null, err
		}
		return olap.IntValue(int64(binary.BigEndian.Uint64(b[:]))), nil
	case olap.KindDecimal:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return olap.Null, err
		}
		var sb [4]byte
		if _, err := io.ReadFull(r, sb[:]); err != nil {
			return olap.Null, err
		}
		unscaled := int64(binary.BigEndian.Uint64(b[:]))
		scale := int32(binary.BigEndian.Uint32(sb[:]))
		return olap.DecimalValue(unscaled, scale), nil
	case olap.KindDouble:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return olap.Null, err
		}
		return olap.DoubleValue(math.Float64frombits(binary.BigEndian.Uint64(b[:]))), nil
	default:
		return olap.Null, fmt.Errorf("%w: unknown value kind %d", ErrNotSerializable, kindByte)
	}
}

// RoundTrip is the serialisation test contract: every header and body
// passing through Pool.Put must encode then decode cleanly.
func RoundTrip(h segment.Header, body segment.Body) error {
	hb, err := EncodeHeader(h)
	if err != nil {
		return err
	}
	if _, err := DecodeHeader(hb); err != nil {
		return err
	}
	bb, err := EncodeBody(body)
	if err != nil {
		return err
	}
	if _, err := DecodeBody(bb); err != nil {
		return err
	}
	return nil
}
