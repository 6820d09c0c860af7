package exchange

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeToMs(t *testing.T) {
	assert.Equal(t, int64(1_700_000_000_000), NormalizeToMs(1_700_000_000))
	assert.Equal(t, int64(1_700_000_000_000), NormalizeToMs(1_700_000_000_000))
	assert.Equal(t, int64(0), NormalizeToMs(0))
}

func TestNumber_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input string
		want  Number
	}{
		{`0.0001`, Number{Value: 0.0001, Valid: true}},
		{`"-0.00025"`, Number{Value: -0.00025, Valid: true}},
		{`" 12.5 "`, Number{Value: 12.5, Valid: true}},
		{`null`, Number{}},
		{`""`, Number{}},
		{`"abc"`, Number{}},
		{`"NaN"`, Number{}},
		{`true`, Number{}},
		{`{}`, Number{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var n Number
			require.NoError(t, json.Unmarshal([]byte(tt.input), &n))
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestNumber_Helpers(t *testing.T) {
	valid := Number{Value: 2, Valid: true}
	assert.Equal(t, 2.0, valid.Or(9))
	assert.Equal(t, 9.0, Number{}.Or(9))
	assert.Nil(t, Number{}.Ptr())
	require.NotNil(t, valid.Ptr())
	assert.Equal(t, 2.0, *valid.Ptr())
	assert.Equal(t, valid, FirstNumber(Number{}, valid, Number{Value: 3, Valid: true}))
	assert.False(t, FirstNumber().Valid)
}

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input string
		want  Timestamp
	}{
		{`1700000000`, Timestamp{Ms: 1_700_000_000_000, Valid: true}},
		{`1700000000000`, Timestamp{Ms: 1_700_000_000_000, Valid: true}},
		{`"1700000000000"`, Timestamp{Ms: 1_700_000_000_000, Valid: true}},
		{`"2023-11-14T22:13:20Z"`, Timestamp{Ms: 1_700_000_000_000, Valid: true}},
		{`"2023-11-14T22:13:20.500Z"`, Timestamp{Ms: 1_700_000_000_500, Valid: true}},
		{`0`, Timestamp{}},
		{`null`, Timestamp{}},
		{`"soon"`, Timestamp{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.input), &ts))
			assert.Equal(t, tt.want, ts)
		})
	}
}

func TestFirst(t *testing.T) {
	ms, ok := First(Timestamp{}, Timestamp{Ms: 5, Valid: true})
	assert.True(t, ok)
	assert.Equal(t, int64(5), ms)

	_, ok = First(Timestamp{})
	assert.False(t, ok)
}
