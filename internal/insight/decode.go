package insight

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Named decode outcomes. Every stage failure wraps exactly one of these or a
// provider error.
var (
	ErrNoJSON        = errors.New("no JSON value in model output")
	ErrMalformedJSON = errors.New("malformed JSON in model output")
	ErrEmptyResult   = errors.New("empty result")
	ErrImplausible   = errors.New("implausible result")
)

// locate returns the first balanced JSON value in s that starts with open
// ('{' or '['). Brackets inside string literals are ignored.
func locate(s string, open byte) (string, error) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", ErrNoJSON
	}
	for start >= 0 {
		if end, ok := balancedEnd(s, start); ok {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
		next := strings.IndexByte(s[start+1:], open)
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrMalformedJSON
}

// balancedEnd returns the index of the bracket closing the one at start.
func balancedEnd(s string, start int) (int, bool) {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// decodeObject locates the first JSON object in raw and decodes it into T.
func decodeObject[T any](raw string) (T, error) {
	var out T
	obj, err := locate(raw, '{')
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return out, nil
}

// decodeArray locates the first JSON array in raw and returns its elements undecoded.
func decodeArray(raw string) ([]json.RawMessage, error) {
	arr, err := locate(raw, '[')
	if err != nil {
		return nil, err
	}
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(arr), &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if len(elems) == 0 {
		return nil, ErrEmptyResult
	}
	return elems, nil
}

// number accepts JSON numbers, numeric strings and null. Currency symbols,
// thousands separators and percent signs are stripped from strings.
type number struct {
	value *float64
}

var numberReplacer = strings.NewReplacer("$", "", ",", "", "%", "", " ", "")

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		n.value = nil
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		n.value = &f
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Objects, arrays and booleans are treated as absent.
		n.value = nil
		return nil
	}
	s = numberReplacer.Replace(strings.TrimSpace(s))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		n.value = nil
		return nil
	}
	n.value = &f
	return nil
}

func (n number) ptr() *float64 {
	if n.value == nil {
		return nil
	}
	v := *n.value
	return &v
}
