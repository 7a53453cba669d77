package query

import (
	"strings"

	"github.com/askdb/askdb/internal/sqltext"
)

type StatementKind string

const (
	StatementRead     StatementKind = "read"
	StatementMutation StatementKind = "mutation"
)

var mutationKeywords = map[string]struct{}{
	"INSERT":  {},
	"UPDATE":  {},
	"DELETE":  {},
	"MERGE":   {},
	"REPLACE": {},
}

// Classify decides whether a statement reads or mutates. Anything that is not a
// single SELECT, WITH or data-modifying statement, including all DDL and DCL,
// is rejected with UnsafeQueryError.
func Classify(sqlText string) (StatementKind, error) {
	if strings.TrimSpace(sqlText) == "" {
		return "", &UnsafeQueryError{Reason: "sql is required"}
	}
	if sqltext.HasTrailingStatement(sqlText) {
		return "", &UnsafeQueryError{Reason: "multiple statements are not allowed"}
	}
	words := sqltext.Keywords(sqlText)
	if len(words) == 0 {
		return "", &UnsafeQueryError{Reason: "no statement found"}
	}

	first := words[0]
	switch {
	case first == "SELECT" || first == "VALUES":
		if containsWord(words, "INTO") {
			return "", &UnsafeQueryError{Reason: "SELECT INTO creates a table and is not allowed"}
		}
		return StatementRead, nil
	case first == "WITH":
		if hasDataModifyingClause(sqlText) {
			return StatementMutation, nil
		}
		if containsWord(words, "INTO") {
			return "", &UnsafeQueryError{Reason: "SELECT INTO creates a table and is not allowed"}
		}
		return StatementRead, nil
	case isMutationKeyword(first):
		return StatementMutation, nil
	default:
		return "", &UnsafeQueryError{Reason: first + " statements are not allowed"}
	}
}

func isMutationKeyword(word string) bool {
	_, ok := mutationKeywords[word]
	return ok
}

// hasDataModifyingClause looks for a mutation keyword where a statement can
// start inside a WITH: at the head of a CTE body or as the main statement after
// the CTE list. Function names and aliases such as replace(...) or AS merge sit
// elsewhere and are ignored.
func hasDataModifyingClause(sqlText string) bool {
	tokens := sqltext.Tokens(sqlText)
	i := 0
	for i < len(tokens) && tokens[i] != "WITH" {
		i++
	}
	i++
	if i < len(tokens) && tokens[i] == "RECURSIVE" {
		i++
	}
	for {
		// name [(columns)] AS [[NOT] MATERIALIZED] ( body )
		if i >= len(tokens) || !isWord(tokens[i]) {
			return hasLooseMutationKeyword(tokens)
		}
		i++
		if i < len(tokens) && tokens[i] == "(" {
			i = skipParens(tokens, i)
		}
		if i >= len(tokens) || tokens[i] != "AS" {
			return hasLooseMutationKeyword(tokens)
		}
		i++
		if i < len(tokens) && tokens[i] == "NOT" {
			i++
		}
		if i < len(tokens) && tokens[i] == "MATERIALIZED" {
			i++
		}
		if i >= len(tokens) || tokens[i] != "(" {
			return hasLooseMutationKeyword(tokens)
		}
		if i+1 < len(tokens) && isMutationKeyword(tokens[i+1]) {
			return true
		}
		i = skipParens(tokens, i)
		if i < len(tokens) && tokens[i] == "," {
			i++
			continue
		}
		break
	}
	return i < len(tokens) && isMutationKeyword(tokens[i])
}

// hasLooseMutationKeyword is the fallback for WITH statements whose CTE list
// does not follow the usual shape. FOR UPDATE and FOR NO KEY UPDATE are row
// locks, and a word followed by "(" or preceded by AS is a function or alias.
func hasLooseMutationKeyword(tokens []string) bool {
	for i, token := range tokens {
		if !isMutationKeyword(token) {
			continue
		}
		if i > 0 && (tokens[i-1] == "AS" || (token == "UPDATE" && (tokens[i-1] == "FOR" || tokens[i-1] == "KEY"))) {
			continue
		}
		if i+1 < len(tokens) && tokens[i+1] == "(" {
			continue
		}
		return true
	}
	return false
}

// skipParens returns the index just past the parenthesis group opening at i.
func skipParens(tokens []string, i int) int {
	depth := 0
	for ; i < len(tokens); i++ {
		switch tokens[i] {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(tokens)
}

func isWord(token string) bool {
	return token != "(" && token != ")" && token != ","
}

func containsWord(words []string, target string) bool {
	for _, word := range words {
		if word == target {
			return true
		}
	}
	return false
}
