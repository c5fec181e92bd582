package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrMalformed is wrapped by canonicalization failures.
var ErrMalformed = errors.New("malformed artifact content")

// Canonicalizer maps raw file content to the byte form that is hashed.
// Two contents with equal canonical forms are the same artifact.
type Canonicalizer interface {
	Canonicalize(path string, content []byte) ([]byte, error)
}

// ContentCanonicalizer picks a canonical form by file extension:
//   - .json and .geojson are parsed and re-emitted with sorted keys,
//     normalized numbers, and FeatureCollection features in sorted order
//   - everything else has CRLF folded to LF and trailing newlines collapsed
type ContentCanonicalizer struct {
	// CoordinatePrecision rounds numbers under a "coordinates" key. 0 = exact.
	CoordinatePrecision int
}

// NewCanonicalizer returns a ContentCanonicalizer.
func NewCanonicalizer(coordinatePrecision int) *ContentCanonicalizer {
	return &ContentCanonicalizer{CoordinatePrecision: coordinatePrecision}
}

// Canonicalize implements Canonicalizer.
func (c *ContentCanonicalizer) Canonicalize(p string, content []byte) ([]byte, error) {
	if IsJSON(p) {
		return c.canonicalJSON(content)
	}
	return canonicalText(content), nil
}

// RawCanonicalizer compares raw bytes exactly.
type RawCanonicalizer struct{}

// Canonicalize returns content unchanged.
func (RawCanonicalizer) Canonicalize(_ string, content []byte) ([]byte, error) {
	return content, nil
}

// IsJSON reports whether a path is treated as JSON.
func IsJSON(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".json", ".geojson":
		return true
	default:
		return false
	}
}

func canonicalText(content []byte) []byte {
	out := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	out = bytes.TrimRight(out, "\n")
	if len(out) == 0 {
		return []byte{}
	}
	return append(out, '\n')
}

func (c *ContentCanonicalizer) canonicalJSON(content []byte) ([]byte, error) {
	// The decoder would replace invalid bytes with U+FFFD, merging distinct inputs.
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrMalformed)
	}
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrMalformed)
	}

	var buf bytes.Buffer
	if err := c.encode(&buf, v, false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeValue reads one value token by token so duplicate object keys are
// seen rather than silently overwritten.
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		m := map[string]any{}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v is not a string", kt)
			}
			if _, dup := m[key]; dup {
				return nil, fmt.Errorf("duplicate key %q", key)
			}
			if m[key], err = decodeValue(dec); err != nil {
				return nil, err
			}
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return m, nil
	case '[':
		arr := []any{}
		for dec.More() {
			el, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, el)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected %q", rune(delim))
	}
}

func (c *ContentCanonicalizer) encode(buf *bytes.Buffer, v any, inCoords bool) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case json.Number:
		s, err := c.number(t, inCoords)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case string:
		encodeString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := c.encode(buf, el, inCoords); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		return c.encodeObject(buf, t, inCoords)
	default:
		return fmt.Errorf("%w: unexpected JSON type %T", ErrMalformed, v)
	}
	return nil
}

func (c *ContentCanonicalizer) encodeObject(buf *bytes.Buffer, m map[string]any, inCoords bool) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	isCollection := m["type"] == "FeatureCollection"

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')

		if features, ok := m[k].([]any); ok && isCollection && k == "features" {
			if err := c.encodeFeatures(buf, features); err != nil {
				return err
			}
			continue
		}
		if err := c.encode(buf, m[k], inCoords || k == "coordinates"); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// encodeFeatures emits features sorted by their canonical encoding; feature
// order in a FeatureCollection carries no meaning.
func (c *ContentCanonicalizer) encodeFeatures(buf *bytes.Buffer, features []any) error {
	encoded := make([][]byte, len(features))
	for i, f := range features {
		var fb bytes.Buffer
		if err := c.encode(&fb, f, false); err != nil {
			return err
		}
		encoded[i] = fb.Bytes()
	}
	sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })

	buf.WriteByte('[')
	for i, e := range encoded {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(e)
	}
	buf.WriteByte(']')
	return nil
}

// number renders n by value: 1, 1.0 and 1e0 agree, while digits beyond
// float64 precision are kept.
func (c *ContentCanonicalizer) number(n json.Number, inCoords bool) (string, error) {
	s := n.String()
	if inCoords && c.CoordinatePrecision > 0 {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return "", fmt.Errorf("%w: number %q: %v", ErrMalformed, s, err)
		}
		scale := math.Pow(10, float64(c.CoordinatePrecision))
		s = strconv.FormatFloat(math.Round(f*scale)/scale, 'g', -1, 64)
	}
	out, err := normalizeDecimal(s)
	if err != nil {
		return "", fmt.Errorf("%w: number %q: %v", ErrMalformed, s, err)
	}
	return out, nil
}

// normalizeDecimal rewrites a JSON number literal as digits × 10^exp with no
// leading or trailing zeros, then prints it in plain notation when the
// decimal point falls within 21 digits and in exponent notation otherwise.
func normalizeDecimal(s string) (string, error) {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	exp := 0
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		e, err := strconv.Atoi(strings.TrimPrefix(s[i+1:], "+"))
		if err != nil {
			return "", err
		}
		exp = e
		s = s[:i]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	digits := intPart + frac
	exp -= len(frac)
	if digits == "" || strings.Trim(digits, "0123456789") != "" {
		return "", errors.New("not a decimal number")
	}

	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return "0", nil // folds -0
	}
	trimmed := strings.TrimRight(digits, "0")
	exp += len(digits) - len(trimmed)
	digits = trimmed

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	point := len(digits) + exp
	switch {
	case point > 0 && point <= 21:
		if exp >= 0 {
			b.WriteString(digits)
			b.WriteString(strings.Repeat("0", exp))
		} else {
			b.WriteString(digits[:point])
			b.WriteByte('.')
			b.WriteString(digits[point:])
		}
	case point <= 0 && point > -6:
		b.WriteString("0.")
		b.WriteString(strings.Repeat("0", -point))
		b.WriteString(digits)
	default:
		b.WriteString(digits[:1])
		if len(digits) > 1 {
			b.WriteByte('.')
			b.WriteString(digits[1:])
		}
		fmt.Fprintf(&b, "e%+d", point-1)
	}
	return b.String(), nil
}

func encodeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encoder appends a newline.
	buf.Truncate(buf.Len() - 1)
}

// Pretty renders canonical bytes one element per line, for diffs.
func Pretty(p string, canonical []byte) string {
	if !IsJSON(p) {
		return string(canonical)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, canonical, "", "  "); err != nil {
		return string(canonical)
	}
	out.WriteByte('\n')
	return out.String()
}
