package analysis

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tables/*.yaml
var builtin embed.FS

// DefaultTablesFile is the embedded table set used when no override is given.
const DefaultTablesFile = "tables/french.yaml"

// Tables is the versioned, externally loadable configuration of the text
// pipeline. Both the Elasticsearch index settings and the in-process analyzer
// are derived from it.
type Tables struct {
	Version      string       `yaml:"version"`
	Language     string       `yaml:"language"`
	Elisions     []string     `yaml:"elisions"`
	Stopwords    []string     `yaml:"stopwords"`
	Stemmer      StemmerRules `yaml:"stemmer"`
	Synonyms     [][]string   `yaml:"synonyms"`
	Autocomplete NGramRange   `yaml:"autocomplete"`
}

// StemmerRules drive the light stemmer. Words shorter than MinLength runes are
// left untouched; the first matching rewrite ends stemming, otherwise each Strip
// suffix is removed once, in order.
type StemmerRules struct {
	Name           string          `yaml:"name"`
	MinLength      int             `yaml:"min_length"`
	Rewrites       []SuffixRewrite `yaml:"rewrites"`
	Strip          []string        `yaml:"strip"`
	CollapseDouble bool            `yaml:"collapse_double"`
}

// SuffixRewrite replaces a terminal suffix.
type SuffixRewrite struct {
	Suffix  string `yaml:"suffix"`
	Replace string `yaml:"replace"`
}

// NGramRange bounds the edge n-grams emitted for autocomplete.
type NGramRange struct {
	MinGram int `yaml:"min_gram"`
	MaxGram int `yaml:"max_gram"`
}

// DefaultTables returns the embedded French catalog tables.
func DefaultTables() (*Tables, error) {
	data, err := builtin.ReadFile(DefaultTablesFile)
	if err != nil {
		return nil, fmt.Errorf("read embedded tables: %w", err)
	}
	return ParseTables(data)
}

// LoadTables reads tables from path, or the embedded defaults when path is empty.
func LoadTables(path string) (*Tables, error) {
	if path == "" {
		return DefaultTables()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read analysis tables %s: %w", path, err)
	}
	return ParseTables(data)
}

// ParseTables decodes and validates a YAML table set.
func ParseTables(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse analysis tables: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Tables) validate() error {
	if strings.TrimSpace(t.Version) == "" {
		return fmt.Errorf("analysis tables: version is required")
	}
	if t.Autocomplete.MinGram < 1 {
		return fmt.Errorf("analysis tables: min_gram must be at least 1")
	}
	if t.Autocomplete.MaxGram < t.Autocomplete.MinGram {
		return fmt.Errorf("analysis tables: max_gram %d is below min_gram %d",
			t.Autocomplete.MaxGram, t.Autocomplete.MinGram)
	}
	for i, group := range t.Synonyms {
		if len(group) < 2 {
			return fmt.Errorf("analysis tables: synonym group %d needs at least two terms", i)
		}
	}
	return nil
}
