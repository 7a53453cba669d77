package prompt

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type examplesFile struct {
	Examples []Example `yaml:"examples"`
}

// LoadExamples reads few-shot examples from a YAML file of the form
//
//	examples:
//	  - question: How many customers are there?
//	    sql: SELECT count(*) FROM customers
//
// An empty path yields no examples.
func LoadExamples(path string) ([]Example, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read examples file: %w", err)
	}
	return ParseExamples(raw)
}

func ParseExamples(raw []byte) ([]Example, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var file examplesFile
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode examples: %w", err)
	}
	for i, example := range file.Examples {
		if strings.TrimSpace(example.Question) == "" {
			return nil, fmt.Errorf("example %d: question is required", i+1)
		}
		if strings.TrimSpace(example.SQL) == "" {
			return nil, fmt.Errorf("example %d: sql is required", i+1)
		}
	}
	return file.Examples, nil
}
