package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/technews/internal/chain"
	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/relevance"
	"github.com/deusflow/technews/internal/rss"
)

// Catalog is the static pipeline configuration: sources, scoring rules,
// fetch settings and stage settings.
type Catalog struct {
	Fetch     rss.Settings    `yaml:"fetch" toml:"fetch"`
	Sources   []news.Source   `yaml:"sources" toml:"sources"`
	Relevance relevance.Rules `yaml:"relevance" toml:"relevance"`
	Stages    chain.Settings  `yaml:"stages" toml:"stages"`
}

// DefaultCatalog returns built-in settings with no sources.
func DefaultCatalog() Catalog {
	return Catalog{
		Fetch:     rss.DefaultSettings(),
		Relevance: relevance.DefaultRules(),
		Stages:    chain.DefaultSettings(),
	}
}

// LoadCatalog reads a .yaml/.yml or .toml catalog over the defaults and
// validates it.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("failed to read pipeline config: %w", err)
	}
	return ParseCatalog(data, filepath.Ext(path))
}

// ParseCatalog decodes data in the format named by ext.
func ParseCatalog(data []byte, ext string) (Catalog, error) {
	cat := DefaultCatalog()

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cat); err != nil {
			return cat, fmt.Errorf("failed to parse pipeline config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cat); err != nil {
			return cat, fmt.Errorf("failed to parse pipeline config: %w", err)
		}
	default:
		return cat, fmt.Errorf("unsupported pipeline config format %q", ext)
	}

	return cat, cat.Validate()
}

// Validate checks sources and stage settings.
func (c Catalog) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("pipeline config has no sources")
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
	}
	for _, stage := range chain.Stages {
		if c.Stages.For(stage).Provider == "" {
			return fmt.Errorf("stage %s has no provider", stage)
		}
	}
	return nil
}
