// Package question holds the candidate-question library and the policy that
// picks what to ask next. The library is immutable at runtime: a new weights
// version is produced offline and swapped in between sessions, never mutated
// mid-conversation.
package question

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tilemart/salescore/internal/sales/requirement"
)

//go:embed questions.yaml
var defaultLibraryYAML []byte

// Template is one candidate question. Weights are static within a library
// version; the offline learning process replaces them wholesale.
type Template struct {
	ID string `yaml:"id" json:"id"`
	// Topic groups questions by project type ("bathroom", "kitchen", ...)
	// or "general" for topic-neutral ones.
	Topic string `yaml:"topic" json:"topic"`
	Text  string `yaml:"text" json:"text"`
	// Targets are the requirement keys this question tries to fill.
	Targets []requirement.Key `yaml:"targets" json:"targets"`
	// Priority is the library-assigned base weight.
	Priority float64 `yaml:"priority" json:"priority"`
	// ConversionWeight is the offline-learned correlation with closed
	// sales.
	ConversionWeight float64 `yaml:"conversion_weight" json:"conversion_weight"`

	// order preserves library insertion order for the final tie-break.
	order int
}

// Library is a versioned, read-only set of question templates.
type Library struct {
	Version   string     `yaml:"version"`
	Templates []Template `yaml:"questions"`
}

// LoadLibrary parses a YAML library document and validates its targets.
func LoadLibrary(data []byte) (*Library, error) {
	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("parse question library: %w", err)
	}
	if len(lib.Templates) == 0 {
		return nil, fmt.Errorf("question library has no questions")
	}
	seen := make(map[string]bool, len(lib.Templates))
	for i := range lib.Templates {
		t := &lib.Templates[i]
		t.order = i
		if t.ID == "" || t.Text == "" {
			return nil, fmt.Errorf("question %d: id and text are required", i)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate question id %q", t.ID)
		}
		seen[t.ID] = true
		if len(t.Targets) == 0 {
			return nil, fmt.Errorf("question %q targets no requirement", t.ID)
		}
		for _, k := range t.Targets {
			if _, err := requirement.NewLedger().Record(k, "probe", false); err != nil {
				return nil, fmt.Errorf("question %q: %w", t.ID, err)
			}
		}
	}
	return &lib, nil
}

// LoadLibraryFile reads a library from disk, falling back to the embedded
// default when path is empty.
func LoadLibraryFile(path string) (*Library, error) {
	if path == "" {
		return LoadLibrary(defaultLibraryYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question library: %w", err)
	}
	return LoadLibrary(data)
}
