package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount_FrenchFormats(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Cents
	}{
		{"comma decimal", "123,45", 12345},
		{"dot decimal", "123.45", 12345},
		{"plain space thousands", "1 234,56", 123456},
		{"no-break space thousands", "1 234,56", 123456},
		{"narrow no-break space thousands", "1 234,56", 123456},
		{"euro suffix", "123,45\u00a0\u20ac", 12345},
		{"dot thousands comma decimal", "1.234,56", 123456},
		{"comma thousands dot decimal", "1,234.56", 123456},
		{"integer", "850", 85000},
		{"bare zero", "0", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, absent, err := ParseAmount(tc.in)
			require.NoError(t, err)
			assert.False(t, absent)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseAmount_ExplicitAbsence(t *testing.T) {
	for _, v := range []any{nil, "", "   ", "-"} {
		_, absent, err := ParseAmount(v)
		require.NoError(t, err)
		assert.True(t, absent, "value %#v should be absent", v)
	}
}

func TestParseAmount_Unparseable(t *testing.T) {
	for _, v := range []any{"abc", "12,34,56x", true, []any{1}} {
		_, _, err := ParseAmount(v)
		assert.Error(t, err, "value %#v should not parse", v)
	}
}

func TestParseAmount_Numbers(t *testing.T) {
	got, absent, err := ParseAmount(float64(100.005))
	require.NoError(t, err)
	assert.False(t, absent)
	assert.Equal(t, Cents(10001), got, "half cents round away from truncation")

	got, _, err = ParseAmount(int(7))
	require.NoError(t, err)
	assert.Equal(t, Cents(700), got)

	got, _, err = ParseAmount(float64(-12.5))
	require.NoError(t, err)
	assert.Equal(t, Cents(-1250), got, "sign survives parsing; the builder rejects it later")
}

func TestCents_String(t *testing.T) {
	assert.Equal(t, "0.00", Cents(0).String())
	assert.Equal(t, "1234.56", Cents(123456).String())
	assert.Equal(t, "0.05", Cents(5).String())
	assert.Equal(t, "-12.50", Cents(-1250).String())
}

func TestCents_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Cents(123456))
	require.NoError(t, err)
	assert.Equal(t, `"1234.56"`, string(b))
}
