package prompts

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultYAML []byte

type Template struct {
	Prompt       string   `yaml:"prompt"`
	RequiredKeys []string `yaml:"required_keys"`
}

type Module struct {
	ID           string   `yaml:"id"`
	Title        string   `yaml:"title"`
	Prompt       string   `yaml:"prompt"`
	RequiredKeys []string `yaml:"required_keys"`
}

type Bootstrap struct {
	User      string `yaml:"user"`
	Assistant string `yaml:"assistant"`
}

type Planner struct {
	System string `yaml:"system"`
	Prompt string `yaml:"prompt"`
}

// Set holds every prompt the backend sends. The texts are opaque to the code.
type Set struct {
	SystemInstruction string    `yaml:"system_instruction"`
	Bootstrap         Bootstrap `yaml:"bootstrap"`
	Chart             Template  `yaml:"chart"`
	Modules           []Module  `yaml:"modules"`
	Planner           Planner   `yaml:"planner"`
}

// Default returns the embedded prompt set. It panics only if the embedded file is broken.
func Default() *Set {
	s, err := Parse(defaultYAML)
	if err != nil {
		panic(err)
	}
	return s
}

func Parse(b []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("prompts: %w", err)
	}
	if s.SystemInstruction == "" || s.Chart.Prompt == "" || len(s.Modules) == 0 {
		return nil, fmt.Errorf("prompts: incomplete prompt set")
	}
	seen := make(map[string]bool, len(s.Modules))
	for _, m := range s.Modules {
		if m.ID == "" || m.Prompt == "" {
			return nil, fmt.Errorf("prompts: module without id or prompt")
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("prompts: duplicate module %s", m.ID)
		}
		seen[m.ID] = true
	}
	return &s, nil
}

func (s *Set) Module(id string) (Module, bool) {
	for _, m := range s.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}
