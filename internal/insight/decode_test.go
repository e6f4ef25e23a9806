package insight

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		open     byte
		expected string
		err      error
	}{
		{"bare object", `{"a":1}`, '{', `{"a":1}`, nil},
		{"object in prose", "Here you go:\n```json\n{\"a\": {\"b\": 2}}\n```\nThanks", '{', `{"a": {"b": 2}}`, nil},
		{"brace inside string", `{"note": "uses } and {", "x": 1}`, '{', `{"note": "uses } and {", "x": 1}`, nil},
		{"escaped quote inside string", `{"q": "say \"}\"", "n": 2}`, '{', `{"q": "say \"}\"", "n": 2}`, nil},
		{"array of objects", `Result: [{"a":1},{"a":2}] done`, '[', `[{"a":1},{"a":2}]`, nil},
		{"skips prose brackets", `[Note] the answer is ["x","y"]`, '[', `["x","y"]`, nil},
		{"no opener", "I cannot help with that.", '{', "", ErrNoJSON},
		{"unbalanced", `{"a": 1`, '{', "", ErrMalformedJSON},
		{"balanced but invalid", `{a: 1}`, '{', "", ErrMalformedJSON},
		{"mismatched closers", `[1, 2}`, '[', "", ErrMalformedJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := locate(tt.input, tt.open)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDecodeArray(t *testing.T) {
	elems, err := decodeArray(`prefix ["a", 2, {"k": "v"}] suffix`)
	require.NoError(t, err)
	assert.Len(t, elems, 3)

	_, err = decodeArray(`[]`)
	assert.ErrorIs(t, err, ErrEmptyResult)

	_, err = decodeArray(`nothing here`)
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestDecodeObject_WrongShape(t *testing.T) {
	type target struct {
		Name string `json:"name"`
	}
	_, err := decodeObject[target](`{"name": 12}`)
	assert.ErrorIs(t, err, ErrMalformedJSON)
}

func TestNumber_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		raw      string
		expected *float64
	}{
		{`1200.5`, ptr(1200.5)},
		{`"1,200.5"`, ptr(1200.5)},
		{`"$3,400"`, ptr(3400)},
		{`"12.4%"`, ptr(12.4)},
		{`"-0.8"`, ptr(-0.8)},
		{`null`, nil},
		{`"n/a"`, nil},
		{`"NaN"`, nil},
		{`true`, nil},
		{`{"value": 1}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var n number
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &n))
			if tt.expected == nil {
				assert.Nil(t, n.value)
				return
			}
			require.NotNil(t, n.value)
			assert.InDelta(t, *tt.expected, *n.value, 1e-9)
		})
	}
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.5, clampConfidence(number{}))
	assert.Equal(t, 0.7, clampConfidence(number{value: ptr(0.7)}))
	assert.Equal(t, 0.0, clampConfidence(number{value: ptr(-0.3)}))
	assert.InDelta(t, 0.85, clampConfidence(number{value: ptr(85)}), 1e-9)
	assert.Equal(t, 1.0, clampConfidence(number{value: ptr(250)}))
}

func ptr(f float64) *float64 { return &f }
