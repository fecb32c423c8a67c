package viewstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"churn-ops-dashboard/internal/table"
)

// Preset is one entry of a presets file.
type Preset struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	State       table.State `yaml:"state"`
}

type presetFile struct {
	Views []Preset `yaml:"views"`
}

// ParsePresets decodes a YAML document of the form
//
//	views:
//	  - name: High risk
//	    state:
//	      sort: [{column: churn_probability, desc: true}]
//	      filters: {status: not_notified}
func ParsePresets(data []byte) ([]Preset, error) {
	var doc presetFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	seen := make(map[string]bool, len(doc.Views))
	for i, p := range doc.Views {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("preset %d has no name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("preset %q is defined twice", name)
		}
		seen[name] = true
		if err := p.State.Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
	}
	return doc.Views, nil
}

// SeedPresets upserts every preset from path. A missing path is not an error.
func (s *Store) SeedPresets(ctx context.Context, path string) (int, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	presets, err := ParsePresets(data)
	if err != nil {
		return 0, err
	}
	for _, p := range presets {
		if _, err := s.Upsert(ctx, p.Name, p.Description, p.State); err != nil {
			return 0, err
		}
	}
	return len(presets), nil
}
