package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Chain describes a sequence of tools where every step after the first
// consumes the previous step's output.
type Chain struct {
	Inputs   []string    `yaml:"inputs" validate:"min=1,dive,required"`
	Password string      `yaml:"password"`
	Steps    []ChainStep `yaml:"steps" validate:"min=1,dive"`
	Output   string      `yaml:"output" validate:"required"`
}

// ChainStep is one tool invocation. Only the fields relevant to Tool are read.
type ChainStep struct {
	Tool       string `yaml:"tool" validate:"oneof=merge split compress optimize protect"`
	Tier       string `yaml:"tier"`
	Pages      []int  `yaml:"pages" validate:"dive,min=1"`
	Rotation   int    `yaml:"rotation" validate:"oneof=0 90 180 270"`
	Passphrase string `yaml:"passphrase"`
}

// LoadChain reads and validates a chain file.
func LoadChain(path string) (*Chain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read chain file %q: %w", path, err)
	}
	var chain Chain
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &chain); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if err := validator.New().Struct(&chain); err != nil {
		return nil, fmt.Errorf("invalid chain %s: %w", path, err)
	}
	return &chain, nil
}
