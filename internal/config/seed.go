package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// SeedTarget is one entry of the targets seed file.
type SeedTarget struct {
	Name        string `yaml:"name"`
	Address     string `yaml:"address"`
	URL         string `yaml:"url"`
	Environment string `yaml:"environment"`
}

type seedFile struct {
	Targets []SeedTarget `yaml:"targets"`
}

// LoadSeedTargets reads the YAML seed file. The url key is accepted as an
// alias of address.
func LoadSeedTargets(path string) ([]SeedTarget, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeedTargets(b)
}

// ParseSeedTargets decodes seed targets from YAML.
func ParseSeedTargets(b []byte) ([]SeedTarget, error) {
	var f seedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	for i := range f.Targets {
		t := &f.Targets[i]
		if strings.TrimSpace(t.Address) == "" {
			t.Address = t.URL
		}
		t.Address = strings.TrimSpace(t.Address)
		if t.Address == "" {
			return nil, fmt.Errorf("targets[%d]: address is required", i)
		}
		if strings.TrimSpace(t.Name) == "" {
			t.Name = t.Address
		}
	}
	return f.Targets, nil
}
