package extraction

import (
	"regexp"
	"strings"
)

// ExtractJSON strips code fences and locates the outermost JSON object
// substring, scanning with string awareness so interior braces do not cut
// the span short. Truncated responses that never close return everything
// from the first opener so repair can balance it.
func ExtractJSON(raw string) string {
	s := stripFences(raw)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// validEscapes are the characters allowed after a backslash inside a JSON
// string.
var validEscapes = map[byte]bool{
	'"': true, '\\': true, '/': true, 'b': true,
	'f': true, 'n': true, 'r': true, 't': true, 'u': true,
}

// firstPassRepair walks the string once, fixing invalid escape sequences,
// terminating an unclosed string, and balancing brackets. Trailing commas
// immediately before an appended closer are removed so the result decodes.
func firstPassRepair(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	inString := false
	var stack []byte

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			if c == '\\' {
				if i+1 >= len(s) {
					// Dangling backslash at the cutoff: drop it.
					break
				}
				next := s[i+1]
				if validEscapes[next] {
					b.WriteByte(c)
					b.WriteByte(next)
				} else {
					// Invalid escape: keep the bare character.
					b.WriteByte(next)
				}
				i++
				continue
			}
			if c == '"' {
				inString = false
			}
			b.WriteByte(c)
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
		b.WriteByte(c)
	}

	out := b.String()
	if inString {
		out += `"`
	}

	for len(stack) > 0 {
		out = trimTrailingComma(out)
		if stack[len(stack)-1] == '{' {
			out += "}"
		} else {
			out += "]"
		}
		stack = stack[:len(stack)-1]
	}
	return out
}

func trimTrailingComma(s string) string {
	trimmed := strings.TrimRight(s, " \t\r\n")
	if strings.HasSuffix(trimmed, ",") {
		return trimmed[:len(trimmed)-1]
	}
	return s
}

var (
	strayBackslashRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)
	trailingCommaRe  = regexp.MustCompile(`,\s*([\]}])`)
)

// aggressiveRepair is the last-resort fixup: drop backslashes before
// non-escape characters, strip trailing commas everywhere, and force the
// document to begin and end with braces.
func aggressiveRepair(s string) string {
	s = strayBackslashRe.ReplaceAllString(s, "$1")
	s = trailingCommaRe.ReplaceAllString(s, "$1")

	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '{'); idx > 0 {
		s = s[idx:]
	} else if idx < 0 {
		s = "{" + s
	}
	if !strings.HasSuffix(s, "}") {
		s = trimTrailingComma(s) + "}"
	}
	return s
}
