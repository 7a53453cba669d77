package nl2sql

import (
	"strings"

	"github.com/askdb/askdb/internal/sqltext"
)

// Extraction is the outcome of looking for SQL in model output. Found is false
// when the text holds no statement.
type Extraction struct {
	Found bool
	SQL   string
}

var statementKeywords = map[string]struct{}{
	"SELECT": {},
	"INSERT": {},
	"UPDATE": {},
	"DELETE": {},
	"WITH":   {},
}

// Extract pulls the first SQL statement out of raw model output. Fenced code
// blocks are searched first, including fences opened and closed on one line.
// In prose a keyword starts a statement when it opens a line or an inline code
// span, or is written in upper case mid-line. A fenced statement ends at the
// first top-level semicolon or the end of the block; in prose a blank line or a
// backtick also ends it.
func Extract(raw string) Extraction {
	for _, block := range fencedBlocks(raw) {
		if sql, ok := extractStatement(block, true); ok {
			return Extraction{Found: true, SQL: sql}
		}
	}
	if sql, ok := extractStatement(raw, false); ok {
		return Extraction{Found: true, SQL: sql}
	}
	return Extraction{}
}

const fence = "```"

// fencedBlocks returns the bodies between pairs of fences with the info string
// (such as "sql") removed. An unclosed fence runs to the end of the text.
func fencedBlocks(raw string) []string {
	var blocks []string
	for rest := raw; ; {
		open := strings.Index(rest, fence)
		if open < 0 {
			return blocks
		}
		body := strings.TrimLeft(rest[open+len(fence):], "`")
		closing := strings.Index(body, fence)
		if closing < 0 {
			if block := stripInfoString(body); strings.TrimSpace(block) != "" {
				blocks = append(blocks, block)
			}
			return blocks
		}
		blocks = append(blocks, stripInfoString(body[:closing]))
		rest = strings.TrimLeft(body[closing+len(fence):], "`")
	}
}

// stripInfoString drops a language tag directly after the opening fence unless
// the tag is itself the first word of a statement.
func stripInfoString(body string) string {
	end := 0
	for end < len(body) && isInfoChar(body[end]) {
		end++
	}
	if end == 0 {
		return body
	}
	if _, ok := statementKeywords[strings.ToUpper(body[:end])]; ok {
		return body
	}
	if end < len(body) && body[end] != ' ' && body[end] != '\t' && body[end] != '\r' && body[end] != '\n' {
		return body
	}
	return body[end:]
}

func isInfoChar(c byte) bool {
	return sqltext.IsIdentPart(c) || c == '-' || c == '+' || c == '.'
}

func extractStatement(text string, fenced bool) (string, bool) {
	start := findStatementStart(text)
	if start < 0 {
		return "", false
	}
	sql := strings.TrimSpace(text[start:findStatementEnd(text, start, fenced)])
	return sql, sql != ""
}

// Apostrophes in prose are not string literals, so only comments are skipped
// while looking for the first keyword.
func findStatementStart(text string) int {
	lineStart := true
	for i := 0; i < len(text); {
		if next, ok := sqltext.SkipComment(text, i); ok {
			i = next
			continue
		}
		c := text[i]
		switch {
		case c == '\n' || c == '`':
			lineStart = true
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case sqltext.IsIdentStart(c):
			j := i
			for j < len(text) && sqltext.IsIdentPart(text[j]) {
				j++
			}
			if (i == 0 || !sqltext.IsIdentPart(text[i-1])) &&
				isStatementKeyword(text[i:j], lineStart) && keywordBoundary(text, j) &&
				(!strings.EqualFold(text[i:j], "WITH") || text[i:j] == "WITH" || opensCTE(text, j)) {
				return i
			}
			lineStart = false
			i = j
		default:
			lineStart = false
			i++
		}
	}
	return -1
}

// isStatementKeyword accepts any casing at the start of a line and only upper
// case elsewhere.
func isStatementKeyword(word string, lineStart bool) bool {
	upper := strings.ToUpper(word)
	if _, ok := statementKeywords[upper]; !ok {
		return false
	}
	return lineStart || word == upper
}

// opensCTE reports whether the text after a WITH that is not written in upper
// case reads like a common table expression: RECURSIVE, or a name followed by
// a column list or AS. This keeps "With pleasure." out of the SQL.
func opensCTE(text string, i int) bool {
	word, i := nextWord(text, i)
	if word == "" {
		return false
	}
	if strings.EqualFold(word, "RECURSIVE") {
		return true
	}
	i = skipSpace(text, i)
	if i < len(text) && text[i] == '(' {
		return true
	}
	word, _ = nextWord(text, i)
	return strings.EqualFold(word, "AS")
}

func nextWord(text string, i int) (string, int) {
	i = skipSpace(text, i)
	j := i
	for j < len(text) && sqltext.IsIdentPart(text[j]) {
		j++
	}
	return text[i:j], j
}

func skipSpace(text string, i int) int {
	for i < len(text) && (text[i] == ' ' || text[i] == '\t' || text[i] == '\r' || text[i] == '\n') {
		i++
	}
	return i
}

func keywordBoundary(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	switch text[end] {
	case ' ', '\t', '\n', '\r', '(', '*':
		return true
	default:
		return false
	}
}

// findStatementEnd returns the offset of the terminator, which is excluded.
// Prose has no quoted identifiers in the supported dialects, so a backtick
// there closes an inline code span.
func findStatementEnd(text string, start int, fenced bool) int {
	for i := start; i < len(text); {
		if !fenced && text[i] == '`' {
			return i
		}
		if next, ok := sqltext.SkipNonCode(text, i); ok {
			i = next
			continue
		}
		switch text[i] {
		case ';':
			return i
		case '\n':
			if fenced {
				break
			}
			rest := text[i+1:]
			lineEnd := strings.IndexByte(rest, '\n')
			line := rest
			if lineEnd >= 0 {
				line = rest[:lineEnd]
			}
			if strings.TrimSpace(line) == "" && lineEnd >= 0 {
				return i
			}
		}
		i++
	}
	return len(text)
}
