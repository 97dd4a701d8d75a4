package vector

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseError reports malformed vector text.
//
// The underlying strconv error (if any) can be accessed via errors.Unwrap.
type ParseError struct {
	Token  string // offending token, empty when the whole input is empty
	Offset int    // token position (0-based)
	Reason string
	cause  error
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("vector: parse: %s", e.Reason)
	}
	return fmt.Sprintf("vector: parse token %d %q: %s", e.Offset, e.Token, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.cause }

// Parse decodes whitespace-separated "index:value" tokens.
//
// Parsing fails on an empty (or blank) string, on tokens without a colon and on
// non-numeric or non-finite values. Duplicate indices keep the last value.
func Parse(text string) (Sparse, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Sparse{}, &ParseError{Reason: "empty vector"}
	}

	es := make([]Entry, 0, len(fields))
	for i, tok := range fields {
		idx, val, ok := strings.Cut(tok, ":")
		if !ok {
			return Sparse{}, &ParseError{Token: tok, Offset: i, Reason: "missing ':'"}
		}
		index, err := strconv.ParseUint(idx, 10, 64)
		if err != nil {
			return Sparse{}, &ParseError{Token: tok, Offset: i, Reason: "invalid index", cause: err}
		}
		value, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return Sparse{}, &ParseError{Token: tok, Offset: i, Reason: "invalid value", cause: err}
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return Sparse{}, &ParseError{Token: tok, Offset: i, Reason: "invalid value"}
		}
		es = append(es, Entry{Index: index, Value: value})
	}
	return FromEntries(es), nil
}

// ParseOrEmpty is Parse that maps blank input to the empty vector.
// Centroids pruned down to nothing serialize as blank text.
func ParseOrEmpty(text string) (Sparse, error) {
	if strings.TrimSpace(text) == "" {
		return Sparse{}, nil
	}
	return Parse(text)
}

// MustParse is Parse that panics on error. Intended for tests and fixtures.
func MustParse(text string) Sparse {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the text encoding in increasing index order.
// The shortest representation that round-trips each float64 is used.
func (v Sparse) String() string {
	return string(v.AppendText(nil))
}

// AppendText appends the text encoding of v to dst.
func (v Sparse) AppendText(dst []byte) []byte {
	for i, e := range v.entries {
		if i > 0 {
			dst = append(dst, ' ')
		}
		dst = strconv.AppendUint(dst, e.Index, 10)
		dst = append(dst, ':')
		dst = strconv.AppendFloat(dst, e.Value, 'g', -1, 64)
	}
	return dst
}
