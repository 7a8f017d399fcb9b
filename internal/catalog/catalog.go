package catalog

import (
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"fame-flywheel/internal/models"
)

// Catalog is the static space of production parameter values the policy
// explores from. Each axis is drawn from independently.
type Catalog struct {
	Genres []string `yaml:"genres"`
	Styles []string `yaml:"styles"`
	Voices []string `yaml:"voices"`
}

// Default returns the built-in value sets.
func Default() *Catalog {
	return &Catalog{
		Genres: []string{
			"creepy pasta",
			"weird history fact",
			"shocking science fact",
			"uplifting personal story",
			"mind-bending puzzle",
		},
		Styles: []string{
			"photorealistic",
			"digital painting",
			"dark fantasy",
			"anime",
			"pixel art",
			"cinematic",
		},
		Voices: []string{
			"en_US-kss-low",
			"en_US-ljspeech-medium",
			"en_US-vctk-low",
		},
	}
}

// Load reads a YAML catalog from path; axes present in the file replace the
// defaults. An empty path returns the defaults unchanged.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) Validate() error {
	if len(c.Genres) == 0 {
		return fmt.Errorf("no genres configured")
	}
	if len(c.Styles) == 0 {
		return fmt.Errorf("no styles configured")
	}
	if len(c.Voices) == 0 {
		return fmt.Errorf("no voices configured")
	}
	return nil
}

// Sample draws one value per axis, independently and uniformly.
func (c *Catalog) Sample(rng *rand.Rand) models.ParameterCombination {
	return models.ParameterCombination{
		Genre: c.Genres[rng.Intn(len(c.Genres))],
		Style: c.Styles[rng.Intn(len(c.Styles))],
		Voice: c.Voices[rng.Intn(len(c.Voices))],
	}
}
