package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
	"github.com/CodeOnCoffee/mondrian-go/internal/segment"
)

func plainHeader() segment.Header {
	return segment.Header{
		Star: olap.StarIdentity{
			SchemaName:     "FoodMart",
			SchemaChecksum: 0xdeadbeef,
			CubeName:       "Sales",
			FactAlias:      "sales_fact",
		},
		Measure:            "unit_sales",
		FactAlias:          "sales_fact",
		ConstrainedColumns: olap.BitKeyOf(0, 1),
		PredicateSummaries: []segment.PredicateSummary{
			{ColumnName: "year", Rendered: "TRUE"},
			{ColumnName: "state", Rendered: "TRUE"},
		},
	}
}

func plainBody() segment.Body {
	return segment.Body{
		AxisKeys: [][]olap.Value{
			{olap.IntValue(1997), olap.IntValue(1998)},
			{olap.IntValue(0), olap.IntValue(1)},
		},
		Cells: []segment.Cell{
			{Key: segment.CellKey{0, 0}, Value: olap.IntValue(10)},
			{Key: segment.CellKey{1, 1}, Value: olap.IntValue(20)},
		},
	}
}

// TestHeaderRoundTrip is property P6 for the TRUE/empty-predicate case: a
// header whose CompoundPredicates and ExcludedRegions are both the empty
// (always-true) list survives encode-then-decode with every field intact.
func TestHeaderRoundTrip(t *testing.T) {
	h := plainHeader()
	b, err := EncodeHeader(h)
	require.NoError(t, err)

	got, err := DecodeHeader(b)
	require.NoError(t, err)

	require.Equal(t, h.Star, got.Star)
	require.Equal(t, h.Measure, got.Measure)
	require.Equal(t, h.FactAlias, got.FactAlias)
	require.True(t, h.ConstrainedColumns.Equals(got.ConstrainedColumns))
	require.Equal(t, h.PredicateSummaries, got.PredicateSummaries)
	require.Equal(t, "TRUE", got.CompoundPredicates.String())
	require.Equal(t, "TRUE", got.ExcludedRegions.String())
}

func TestBodyRoundTrip(t *testing.T) {
	body := plainBody()
	b, err := EncodeBody(body)
	require.NoError(t, err)
	require.Equal(t, byte(0), b[0], "small bodies are stored uncompressed")

	got, err := DecodeBody(b)
	require.NoError(t, err)
	require.Equal(t, len(body.AxisKeys), len(got.AxisKeys))
	for i := range body.AxisKeys {
		require.Len(t, got.AxisKeys[i], len(body.AxisKeys[i]))
		for j, v := range body.AxisKeys[i] {
			require.True(t, v.Equal(got.AxisKeys[i][j]))
		}
	}
	require.Len(t, got.Cells, len(body.Cells))
	for i, c := range body.Cells {
		require.Equal(t, c.Key, got.Cells[i].Key)
		require.True(t, c.Value.Equal(got.Cells[i].Value))
	}
}

// TestBodyRoundTripCompressesLargeBodies exercises the zstd path: enough
// cells to cross CompressionThresholdBytes must still decode identically.
func TestBodyRoundTripCompressesLargeBodies(t *testing.T) {
	var body segment.Body
	body.AxisKeys = [][]olap.Value{make([]olap.Value, 2000)}
	for i := range body.AxisKeys[0] {
		body.AxisKeys[0][i] = olap.IntValue(int64(i))
	}
	for i := 0; i < 2000; i++ {
		body.Cells = append(body.Cells, segment.Cell{Key: segment.CellKey{i}, Value: olap.IntValue(int64(i))})
	}

	b, err := EncodeBody(body)
	require.NoError(t, err)
	require.Greater(t, len(b), CompressionThresholdBytes/4, "sanity: body is non-trivial")
	require.Equal(t, byte(1), b[0], "bodies over the threshold must be zstd-compressed")

	got, err := DecodeBody(b)
	require.NoError(t, err)
	require.Len(t, got.Cells, len(body.Cells))
	for i, c := range body.Cells {
		require.True(t, c.Value.Equal(got.Cells[i].Value))
	}
}

// TestBodyRoundTripPreservesDecimalKind is property P6 for Decimal
// measures: a cell holding a DecimalValue must decode back as Kind Decimal,
// not silently widen to Double, since the two kinds exist specifically to
// keep aggregated measures free of binary-float rounding (value.go).
func TestBodyRoundTripPreservesDecimalKind(t *testing.T) {
	body := segment.Body{
		AxisKeys: [][]olap.Value{{olap.IntValue(1997)}},
		Cells: []segment.Cell{
			{Key: segment.CellKey{0}, Value: olap.DecimalValue(12345, 2)},
		},
	}

	b, err := EncodeBody(body)
	require.NoError(t, err)
	got, err := DecodeBody(b)
	require.NoError(t, err)

	require.Len(t, got.Cells, 1)
	v := got.Cells[0].Value
	require.Equal(t, olap.KindDecimal, v.Kind())
	require.Equal(t, int64(12345), v.Unscaled())
	require.Equal(t, int32(2), v.Scale())
	require.Equal(t, 123.45, v.Float64())
}

func TestDecodeBodyRejectsEmptyInput(t *testing.T) {
	_, err := DecodeBody(nil)
	require.ErrorIs(t, err, ErrNotSerializable)
}

func TestDecodeHeaderRejectsTruncatedInput(t *testing.T) {
	b, err := EncodeHeader(plainHeader())
	require.NoError(t, err)
	_, err = DecodeHeader(b[:len(b)-1])
	require.ErrorIs(t, err, ErrNotSerializable)
}

func TestRoundTripSucceedsForPlainHeaderAndBody(t *testing.T) {
	require.NoError(t, RoundTrip(plainHeader(), plainBody()))
}
