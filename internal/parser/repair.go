// internal/parser/repair.go
package parser

import (
	"regexp"
	"strings"
)

var (
	contentsKey  = regexp.MustCompile(`"contents"\s*:\s*"`)
	outerObject  = regexp.MustCompile(`(?s)\{.*\}`)
	validEscapes = "\"\\/bfnrtu"
)

// repairTruncation closes a document that was cut off mid-stream: an
// open string gets its quote, a dangling key gets a null value, and every
// open object or array is closed in order.
func repairTruncation(s string) (string, bool) {
	if strings.HasSuffix(s, "}") {
		return s, false
	}
	return closeOpen(s)
}

// closeOpen balances brackets outside of strings. It reports false when
// nothing needed closing.
func closeOpen(s string) (string, bool) {
	var stack []byte
	inString, escaped := false, false
	lastStringStart := -1

	for i := 0; i < len(s); i++ {
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
			lastStringStart = i
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if !inString && len(stack) == 0 {
		return s, false
	}

	out := s
	if inString {
		if escaped {
			out = out[:len(out)-1]
		}
		out += `"`
	}

	out = strings.TrimRight(out, " \t\r\n")
	switch {
	case strings.HasSuffix(out, ","):
		out = strings.TrimRight(out[:len(out)-1], " \t\r\n")
	case strings.HasSuffix(out, ":"):
		out += "null"
	case strings.HasSuffix(out, `"`) && lastStringStart >= 0 && isKeyPosition(s, lastStringStart, stack):
		out += ":null"
	}

	var b strings.Builder
	b.WriteString(out)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String(), true
}

// isKeyPosition reports whether the string starting at start sits where
// an object key is expected
func isKeyPosition(s string, start int, stack []byte) bool {
	if len(stack) == 0 || stack[len(stack)-1] != '{' {
		return false
	}
	prev := strings.TrimRight(s[:start], " \t\r\n")
	return strings.HasSuffix(prev, "{") || strings.HasSuffix(prev, ",")
}

// repairEscaping isolates the outermost object and re-escapes the values
// of every "contents" key, where generated source code tends to carry raw
// newlines, quotes and backslashes.
func repairEscaping(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s, false
	}

	body := s[start : end+1]
	body = escapeContentsValues(body)
	body = stripTrailingCommas(body)
	body = stripControlChars(body)
	return body, true
}

// repairAggressive re-escapes every string in the largest object block
// and closes whatever is still open.
func repairAggressive(s string) (string, bool) {
	body := outerObject.FindString(s)
	if body == "" {
		start := strings.IndexByte(s, '{')
		if start < 0 {
			return s, false
		}
		body = s[start:]
	}

	body = escapeAllStrings(body)
	body = stripTrailingCommas(body)
	body = stripControlChars(body)
	if closed, ok := closeOpen(body); ok {
		body = closed
	}
	return body, true
}

func escapeContentsValues(s string) string {
	var b strings.Builder
	pos := 0
	for pos < len(s) {
		loc := contentsKey.FindStringIndex(s[pos:])
		if loc == nil {
			break
		}
		valueStart := pos + loc[1]
		b.WriteString(s[pos:valueStart])

		value, next := scanLooseString(s, valueStart, false)
		b.WriteString(value)
		pos = next
	}
	b.WriteString(s[pos:])
	return b.String()
}

func escapeAllStrings(s string) string {
	var b strings.Builder
	var stack []byte
	expectKey := false

	for i := 0; i < len(s); {
		c := s[i]
		if c == '"' {
			b.WriteByte('"')
			value, next := scanLooseString(s, i+1, expectKey)
			b.WriteString(value)
			i = next
			continue
		}

		switch c {
		case '{':
			stack = append(stack, c)
			expectKey = true
		case '[':
			stack = append(stack, c)
			expectKey = false
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			expectKey = false
		case ',':
			expectKey = len(stack) > 0 && stack[len(stack)-1] == '{'
		case ':':
			expectKey = false
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// scanLooseString reads a string body starting just after its opening
// quote and returns it escaped, including the closing quote when one was
// found. A quote only closes the string when what follows it looks like
// JSON structure; otherwise it is treated as content.
func scanLooseString(s string, i int, key bool) (string, int) {
	var b strings.Builder
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\\':
			if i+1 < len(s) && strings.IndexByte(validEscapes, s[i+1]) >= 0 &&
				(s[i+1] != 'u' || isHex4(s, i+2)) {
				b.WriteByte(c)
				b.WriteByte(s[i+1])
				i += 2
				continue
			}
			b.WriteString(`\\`)
		case c == '"':
			if closesString(s, i+1, key) {
				b.WriteByte('"')
				return b.String(), i + 1
			}
			b.WriteString(`\"`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
			// unprintable, dropped
		default:
			b.WriteByte(c)
		}
		i++
	}
	return b.String(), i
}

func closesString(s string, j int, key bool) bool {
	j = skipSpace(s, j)
	if j >= len(s) {
		return true
	}
	if key {
		return s[j] == ':'
	}
	switch s[j] {
	case ',':
		k := skipSpace(s, j+1)
		return k >= len(s) || s[k] == '"' || s[k] == '}' || s[k] == ']'
	case '}', ']':
		k := skipSpace(s, j+1)
		return k >= len(s) || s[k] == '}' || s[k] == ']' || s[k] == ','
	}
	return false
}

func stripTrailingCommas(s string) string {
	var b strings.Builder
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
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
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			k := skipSpace(s, i+1)
			if k < len(s) && (s[k] == '}' || s[k] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// stripControlChars drops control bytes other than JSON whitespace
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if (r < 0x20 && r != '\n' && r != '\r' && r != '\t') || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

func isHex4(s string, i int) bool {
	if i+4 > len(s) {
		return false
	}
	for _, c := range s[i : i+4] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
