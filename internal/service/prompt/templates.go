package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

// Defaults holds the placeholder values substituted for blank inputs.
type Defaults struct {
	Goal               string `yaml:"goal"`
	FeedbackGoal       string `yaml:"feedback_goal"`
	PartnerName        string `yaml:"partner_name"`
	PartnerDescription string `yaml:"partner_description"`
}

// Templates is the versioned instruction text used by the Builder.
type Templates struct {
	Version         string   `yaml:"version"`
	Defaults        Defaults `yaml:"defaults"`
	Style           string   `yaml:"style"`
	CharacterPlay   string   `yaml:"character_play"`
	Assistant       string   `yaml:"assistant"`
	Rubric          string   `yaml:"rubric"`
	FeedbackRequest string   `yaml:"feedback_request"`
}

// DefaultTemplates returns the embedded template set.
func DefaultTemplates() Templates {
	var t Templates
	if err := yaml.Unmarshal(defaultTemplatesYAML, &t); err != nil {
		panic(fmt.Sprintf("prompt: embedded templates are invalid: %v", err))
	}
	return t
}

// LoadTemplates overlays the YAML file at path on the embedded defaults.
// Fields missing from the file keep their default text. An empty path
// returns the defaults unchanged.
func LoadTemplates(path string) (Templates, error) {
	t := DefaultTemplates()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Templates{}, fmt.Errorf("read prompt templates: %w", err)
	}
	if err := t.Merge(data); err != nil {
		return Templates{}, err
	}
	return t, nil
}

// Merge decodes a YAML document over t.
func (t *Templates) Merge(data []byte) error {
	var override Templates
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parse prompt templates: %w", err)
	}

	overlay(&t.Version, override.Version)
	overlay(&t.Style, override.Style)
	overlay(&t.CharacterPlay, override.CharacterPlay)
	overlay(&t.Assistant, override.Assistant)
	overlay(&t.Rubric, override.Rubric)
	overlay(&t.FeedbackRequest, override.FeedbackRequest)
	overlay(&t.Defaults.Goal, override.Defaults.Goal)
	overlay(&t.Defaults.FeedbackGoal, override.Defaults.FeedbackGoal)
	overlay(&t.Defaults.PartnerName, override.Defaults.PartnerName)
	overlay(&t.Defaults.PartnerDescription, override.Defaults.PartnerDescription)

	return t.Validate()
}

// Validate checks that every template body is present.
func (t Templates) Validate() error {
	required := map[string]string{
		"style":            t.Style,
		"character_play":   t.CharacterPlay,
		"assistant":        t.Assistant,
		"rubric":           t.Rubric,
		"feedback_request": t.FeedbackRequest,
	}
	for name, body := range required {
		if strings.TrimSpace(body) == "" {
			return fmt.Errorf("prompt template %q is empty", name)
		}
	}
	return nil
}

func overlay(dst *string, value string) {
	if strings.TrimSpace(value) != "" {
		*dst = value
	}
}
