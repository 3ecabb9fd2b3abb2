// Package persona loads the static persona document that steers every completion.
package persona

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultName is used when the persona document does not name the character.
const DefaultName = "Noa"

// Persona is the read-only behavioural instruction loaded at startup.
type Persona struct {
	Name         string            `json:"name" yaml:"name"`
	SystemPrompt string            `json:"system_prompt" yaml:"system_prompt"`
	Extra        map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Load reads a persona from a JSON or YAML file, chosen by extension. A missing
// system_prompt is allowed; completions then run without a persona line.
func Load(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona %s: %w", path, err)
	}

	var p Persona
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	default:
		err = json.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse persona %s: %w", path, err)
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		slog.Warn("Persona.Load: system_prompt is empty, completions run without a persona prompt", "path", path)
	}
	if p.Name == "" {
		p.Name = DefaultName
	}

	slog.Debug("Persona.Load: persona loaded", "path", path, "name", p.Name, "prompt_len", len(p.SystemPrompt))
	return &p, nil
}

// Prompt returns the trimmed system prompt.
func (p *Persona) Prompt() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.SystemPrompt)
}
