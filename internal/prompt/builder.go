// Package prompt turns a question and a schema description into the text sent
// to the language model.
package prompt

import (
	"errors"
	"strings"

	"github.com/askdb/askdb/internal/schema"
)

var ErrEmptyQuestion = errors.New("question must not be empty")

// Example is a question paired with the SQL that answers it.
type Example struct {
	Question string `yaml:"question" json:"question"`
	SQL      string `yaml:"sql" json:"sql"`
}

// Builder renders prompts. It holds no mutable state, so one Builder can serve
// every request.
type Builder struct {
	examples []Example
}

func NewBuilder(examples []Example) *Builder {
	kept := make([]Example, 0, len(examples))
	for _, example := range examples {
		question := strings.TrimSpace(example.Question)
		sql := strings.TrimSpace(example.SQL)
		if question == "" || sql == "" {
			continue
		}
		kept = append(kept, Example{Question: question, SQL: sql})
	}
	return &Builder{examples: kept}
}

// Build returns the same text for the same inputs.
func (b *Builder) Build(question string, description schema.Description) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	var sb strings.Builder
	sb.WriteString("You translate questions into one ")
	sb.WriteString(description.Dialect.DisplayName())
	sb.WriteString(" query.\n")
	sb.WriteString("Use only the tables and columns listed below. Quote identifiers only when required.\n\n")

	sb.WriteString("Schema:\n")
	for _, table := range description.Tables {
		sb.WriteString(description.QualifiedName(table))
		sb.WriteString("(")
		for i, column := range table.Columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(column.Name)
			sb.WriteString(":")
			sb.WriteString(column.Type)
		}
		sb.WriteString(")\n")
	}

	if b != nil && len(b.examples) > 0 {
		sb.WriteString("\nExamples:\n")
		for _, example := range b.examples {
			sb.WriteString("Question: ")
			sb.WriteString(example.Question)
			sb.WriteString("\nSQL: ")
			sb.WriteString(example.SQL)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer with exactly one SQL statement and no prose.\n")
	return sb.String(), nil
}
