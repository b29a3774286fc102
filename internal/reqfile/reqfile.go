// Package reqfile loads product requirements from YAML files so they
// can be fed to the orchestrator.
package reqfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/orchid-dev/orchid/pkg/models"
)

// File is the on-disk requirements document.
type File struct {
	Requirements []*models.Requirement `yaml:"requirements"`
}

// Load reads a requirements YAML file and validates its entries.
func Load(path string) ([]*models.Requirement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read requirements file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if len(f.Requirements) == 0 {
		return nil, fmt.Errorf("%s contains no requirements", path)
	}

	seen := make(map[string]bool)
	for i, req := range f.Requirements {
		if err := normalize(req); err != nil {
			return nil, fmt.Errorf("%s: requirement %d: %w", path, i+1, err)
		}
		if seen[req.ID] {
			return nil, fmt.Errorf("%s: duplicate requirement id %q", path, req.ID)
		}
		seen[req.ID] = true
	}

	return f.Requirements, nil
}

// LoadDir loads every .yaml and .yml file in a directory, sorted by
// file name. Duplicate ids across files keep the last occurrence.
func LoadDir(dir string) ([]*models.Requirement, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read requirements directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	sort.Strings(paths)

	byID := make(map[string]*models.Requirement)
	var order []string
	for _, path := range paths {
		reqs, err := Load(path)
		if err != nil {
			return nil, err
		}
		for _, req := range reqs {
			if _, ok := byID[req.ID]; !ok {
				order = append(order, req.ID)
			}
			byID[req.ID] = req
		}
	}

	out := make([]*models.Requirement, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

// normalize fills defaults and rejects entries that cannot be
// dispatched.
func normalize(req *models.Requirement) error {
	if req == nil {
		return fmt.Errorf("empty requirement entry")
	}
	if req.ID == "" {
		return fmt.Errorf("missing id")
	}
	if req.Title == "" {
		return fmt.Errorf("requirement %s: missing title", req.ID)
	}

	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}
	if !req.Priority.Valid() {
		return fmt.Errorf("requirement %s: invalid priority %q", req.ID, req.Priority)
	}
	if req.EstimatedHours < 0 {
		return fmt.Errorf("requirement %s: negative estimated_hours", req.ID)
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	return nil
}
