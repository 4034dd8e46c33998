package render

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// normalize re-encodes a valid JSON document the way a browser would after
// a parse/stringify round trip: numbers in shortest JavaScript form, strings
// with only the mandatory escapes, and the last value winning for repeated
// object keys. Output is compact.
func normalize(data []byte) []byte {
	var buf bytes.Buffer
	writeValue(&buf, gjson.ParseBytes(data))
	return buf.Bytes()
}

type member struct {
	key   string
	value gjson.Result
}

func writeValue(buf *bytes.Buffer, v gjson.Result) {
	switch {
	case v.IsObject():
		writeObject(buf, v)
	case v.IsArray():
		buf.WriteByte('[')
		first := true
		v.ForEach(func(_, elem gjson.Result) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeValue(buf, elem)
			return true
		})
		buf.WriteByte(']')
	case v.Type == gjson.String:
		buf.WriteString(Quote(v.Str))
	case v.Type == gjson.Number:
		buf.WriteString(formatNumber(v.Num))
	case v.Type == gjson.True:
		buf.WriteString("true")
	case v.Type == gjson.False:
		buf.WriteString("false")
	default:
		buf.WriteString("null")
	}
}

// A repeated key keeps the position of its first occurrence and the value
// of its last.
func writeObject(buf *bytes.Buffer, v gjson.Result) {
	var members []member
	index := make(map[string]int)
	v.ForEach(func(key, value gjson.Result) bool {
		if i, ok := index[key.Str]; ok {
			members[i].value = value
			return true
		}
		index[key.Str] = len(members)
		members = append(members, member{key: key.Str, value: value})
		return true
	})

	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(Quote(m.key))
		buf.WriteByte(':')
		writeValue(buf, m.value)
	}
	buf.WriteByte('}')
}

// formatNumber prints f like Number.prototype.toString: plain decimal
// between 1e-6 and 1e21, exponent form outside, and null for values that
// overflowed to infinity.
func formatNumber(f float64) string {
	switch {
	case math.IsInf(f, 0) || math.IsNaN(f):
		return "null"
	case f == 0:
		return "0"
	}

	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	// Go pads the exponent to two digits (1e-07), JavaScript does not.
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	digits := strings.TrimLeft(exp[1:], "0")
	return mantissa + "e" + exp[:1] + digits
}

const hexDigits = "0123456789abcdef"

// Quote encodes s as a JSON string literal with the escapes
// JSON.stringify uses: quote, backslash, the short control escapes and
// \u00XX for the remaining control characters. HTML characters and
// non-ASCII text are written as is; invalid UTF-8 becomes U+FFFD.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == utf8.RuneError && size == 1:
			b.WriteRune(utf8.RuneError)
		case r == '"':
			b.WriteString(`\"`)
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\b':
			b.WriteString(`\b`)
		case r == '\f':
			b.WriteString(`\f`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20:
			b.WriteString(`\u00`)
			b.WriteByte(hexDigits[r>>4])
			b.WriteByte(hexDigits[r&0xf])
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
