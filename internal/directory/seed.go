package directory

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the on-disk bootstrap for the faculty set:
//
//	faculty:
//	  - prof.jansen
//	  - dr.devries
type Seed struct {
	Faculty []string `yaml:"faculty"`
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read faculty seed: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse faculty seed %s: %w", path, err)
	}
	return seed, nil
}

// ApplySeed adds every seeded id to the faculty set. Existing members stay.
func ApplySeed(ctx context.Context, faculty *FacultyStore, seed Seed) (int, error) {
	if len(seed.Faculty) == 0 {
		return 0, nil
	}
	if err := faculty.Add(ctx, seed.Faculty...); err != nil {
		return 0, err
	}
	return len(seed.Faculty), nil
}
