// Package sqltext scans SQL text without parsing it: it knows where literals,
// quoted identifiers and comments begin and end, and nothing else.
package sqltext

import "strings"

// SkipComment returns the offset just past a comment starting at i. Line
// comments stop before their newline.
func SkipComment(text string, i int) (int, bool) {
	if i+1 >= len(text) {
		return i, false
	}
	switch {
	case text[i] == '-' && text[i+1] == '-':
		if end := strings.IndexByte(text[i:], '\n'); end >= 0 {
			return i + end, true
		}
		return len(text), true
	case text[i] == '/' && text[i+1] == '*':
		if end := strings.Index(text[i+2:], "*/"); end >= 0 {
			return i + 2 + end + 2, true
		}
		return len(text), true
	}
	return i, false
}

// SkipNonCode returns the offset just past a comment, string literal, quoted
// identifier or dollar-quoted body starting at i.
func SkipNonCode(text string, i int) (int, bool) {
	if next, ok := SkipComment(text, i); ok {
		return next, true
	}
	if i >= len(text) {
		return i, false
	}
	switch c := text[i]; c {
	case '\'', '"', '`':
		for j := i + 1; j < len(text); j++ {
			if text[j] != c {
				continue
			}
			if j+1 < len(text) && text[j+1] == c {
				j++
				continue
			}
			return j + 1, true
		}
		return len(text), true
	case '$':
		tag, ok := dollarTag(text, i)
		if !ok {
			return i, false
		}
		body := i + len(tag)
		if end := strings.Index(text[body:], tag); end >= 0 {
			return body + end + len(tag), true
		}
		return len(text), true
	}
	return i, false
}

func dollarTag(text string, i int) (string, bool) {
	for j := i + 1; j < len(text); j++ {
		c := text[j]
		if c == '$' {
			return text[i : j+1], true
		}
		if !IsIdentPart(c) || (j == i+1 && c >= '0' && c <= '9') {
			return "", false
		}
	}
	return "", false
}

// TerminatorIndex is the offset of the first semicolon outside literals and
// comments, or -1.
func TerminatorIndex(text string) int {
	for i := 0; i < len(text); {
		if next, ok := SkipNonCode(text, i); ok {
			i = next
			continue
		}
		if text[i] == ';' {
			return i
		}
		i++
	}
	return -1
}

// HasTrailingStatement reports whether anything other than whitespace,
// semicolons and comments follows the first top-level semicolon.
func HasTrailingStatement(text string) bool {
	end := TerminatorIndex(text)
	if end < 0 {
		return false
	}
	rest := text[end+1:]
	for i := 0; i < len(rest); {
		if next, ok := SkipComment(rest, i); ok {
			i = next
			continue
		}
		switch rest[i] {
		case ' ', '\t', '\n', '\r', ';':
			i++
		default:
			return true
		}
	}
	return false
}

// Keywords lists the bare words of text in upper case, in order, ignoring
// anything inside literals, quoted identifiers and comments.
func Keywords(text string) []string {
	var words []string
	for i := 0; i < len(text); {
		if next, ok := SkipNonCode(text, i); ok {
			i = next
			continue
		}
		if IsIdentStart(text[i]) && (i == 0 || !IsIdentPart(text[i-1])) {
			j := i
			for j < len(text) && IsIdentPart(text[j]) {
				j++
			}
			words = append(words, strings.ToUpper(text[i:j]))
			i = j
			continue
		}
		i++
	}
	return words
}

// Tokens is Keywords plus the parentheses and commas between the words, which
// is enough to follow the nesting of a statement.
func Tokens(text string) []string {
	var tokens []string
	for i := 0; i < len(text); {
		if next, ok := SkipNonCode(text, i); ok {
			i = next
			continue
		}
		c := text[i]
		switch {
		case c == '(' || c == ')' || c == ',':
			tokens = append(tokens, string(c))
		case IsIdentStart(c) && (i == 0 || !IsIdentPart(text[i-1])):
			j := i
			for j < len(text) && IsIdentPart(text[j]) {
				j++
			}
			tokens = append(tokens, strings.ToUpper(text[i:j]))
			i = j
			continue
		}
		i++
	}
	return tokens
}

// TrimTrailingTerminators drops trailing semicolons and whitespace.
func TrimTrailingTerminators(text string) string {
	trimmed := strings.TrimSpace(text)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func IsIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func IsIdentPart(c byte) bool {
	return IsIdentStart(c) || (c >= '0' && c <= '9')
}
