package olap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueAddWidestWins(t *testing.T) {
	cases := []struct {
		name string
		a, b Value
		want Value
	}{
		{"null plus null", Null, Null, Null},
		{"null never contaminates", Null, IntValue(5), IntValue(5)},
		{"int plus null", IntValue(7), Null, IntValue(7)},
		{"int plus int", IntValue(2), IntValue(3), IntValue(5)},
		{"int widens to decimal", IntValue(2), DecimalValue(150, 2), DecimalValue(350, 2)},
		{"decimal widens to double", DecimalValue(100, 2), DoubleValue(0.5), DoubleValue(1.5)},
		{"int widens to double", IntValue(1), DoubleValue(0.5), DoubleValue(1.5)},
		{"double plus double", DoubleValue(1.5), DoubleValue(2.5), DoubleValue(4)},
		{"decimal plus decimal same scale", DecimalValue(100, 2), DecimalValue(50, 2), DecimalValue(150, 2)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := c.a.Add(c.b)
			require.True(t, got.Equal(c.want), "%s.Add(%s) = %s, want %s", c.a, c.b, got, c.want)
		})
	}
}

func TestValueEqualCrossKind(t *testing.T) {
	require.True(t, IntValue(3).Equal(DoubleValue(3.0)))
	require.False(t, IntValue(3).Equal(DoubleValue(3.1)))
	require.True(t, Null.Equal(Null))
	require.False(t, Null.Equal(IntValue(0)))
}

func TestValueIsNull(t *testing.T) {
	require.True(t, Null.IsNull())
	require.False(t, IntValue(0).IsNull())
}
