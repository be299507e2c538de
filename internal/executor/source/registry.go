// Package source loads the registry of content sources the scraper fetches.
package source

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind selects the fetch strategy for a source.
type Kind string

const (
	KindRSS  Kind = "rss"
	KindHTML Kind = "html"
)

// Source describes a single content source.
type Source struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Kind        Kind   `yaml:"kind"`
	FetchTarget string `yaml:"url"`
	Category    string `yaml:"category"`
	// LinkSelector is the CSS selector of article links on an html listing page.
	LinkSelector string `yaml:"linkSelector"`
	// FullText fetches each rss entry's page instead of trusting the feed description.
	FullText bool  `yaml:"fullText"`
	MaxItems int   `yaml:"maxItems"`
	Enabled  *bool `yaml:"enabled"`
}

// IsEnabled reports whether the source participates in runs. Sources are enabled unless set otherwise.
func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Registry is the set of configured sources, in file order.
type Registry struct {
	Sources []Source `yaml:"sources"`
}

// Load reads and validates a registry file.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a registry document.
func Parse(raw []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse sources: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate checks ids are unique and every source is fetchable.
func (r *Registry) Validate() error {
	seen := make(map[string]bool, len(r.Sources))
	for i := range r.Sources {
		src := &r.Sources[i]
		src.ID = strings.TrimSpace(src.ID)
		src.Kind = Kind(strings.ToLower(string(src.Kind)))
		src.Category = strings.ToLower(strings.TrimSpace(src.Category))

		if src.ID == "" {
			return fmt.Errorf("source #%d: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("source %s: duplicate id", src.ID)
		}
		seen[src.ID] = true

		switch src.Kind {
		case KindRSS:
		case KindHTML:
			if src.LinkSelector == "" {
				return fmt.Errorf("source %s: linkSelector is required for html sources", src.ID)
			}
		default:
			return fmt.Errorf("source %s: unknown kind %q", src.ID, src.Kind)
		}
		if src.FetchTarget == "" {
			return fmt.Errorf("source %s: url is required", src.ID)
		}
		if src.Category == "" {
			return fmt.Errorf("source %s: category is required", src.ID)
		}
	}
	return nil
}

// Enabled returns the enabled sources in file order.
func (r *Registry) Enabled() []Source {
	out := make([]Source, 0, len(r.Sources))
	for _, s := range r.Sources {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}
