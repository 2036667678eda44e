package activities

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// promptSet maps prompt ids to the instruction text sent to the model
// service with each invocation.
type promptSet map[string]string

// loadPrompts returns the built-in instruction set, overlaid with the file
// at PROMPTS_PATH when set. Unknown ids in the override are kept so that
// deployments can ship extra prompts without a rebuild.
func loadPrompts() (promptSet, error) {
	set := make(promptSet)
	if err := yaml.Unmarshal(defaultPrompts, &set); err != nil {
		return nil, fmt.Errorf("parse embedded prompts: %w", err)
	}

	path := os.Getenv("PROMPTS_PATH")
	if path == "" {
		return set, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts override %s: %w", path, err)
	}
	override := make(promptSet)
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse prompts override %s: %w", path, err)
	}
	for id, text := range override {
		set[id] = text
	}
	return set, nil
}

func (p promptSet) instructions(promptID string) string {
	return p[promptID]
}
