// Package deps scans a cloned project tree for ESP-IDF component
// manifests and records their declared dependencies in the store.
package deps

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nugget/thane-forge/internal/store"
)

// manifestName is the component manifest file this resolver looks for
// in every directory of a cloned project.
const manifestName = "idf_component.yml"

// skipDirs are directory names the walk never descends into: hidden
// directories (version control, editor state) and known build output.
var skipDirs = map[string]bool{
	"build":       true,
	"dist":        true,
	"__pycache__": true,
	"managed_components": true,
}

// Resolver scans project clones for dependency manifests.
type Resolver struct {
	logger *slog.Logger
	store  *store.Store
}

// New creates a Resolver.
func New(logger *slog.Logger, st *store.Store) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger, store: st}
}

// Scan walks projectPath for idf_component.yml manifests, parses each
// one, and replaces the project's stored dependency set with what it
// found. It returns the number of manifests read and the total
// dependency count across all of them.
func (r *Resolver) Scan(projectID, projectPath string) (manifests, total int, err error) {
	paths, err := r.findManifests(projectPath)
	if err != nil {
		return 0, 0, fmt.Errorf("deps: walking %s: %w", projectPath, err)
	}

	var all []*store.Dependency
	for _, p := range paths {
		found, err := parseManifest(p)
		if err != nil {
			r.logger.Warn("deps: skipping unreadable manifest", "path", p, "error", err)
			continue
		}
		manifests++
		total += len(found)
		all = append(all, found...)
	}

	if err := r.store.ReplaceDependencies(projectID, all); err != nil {
		return manifests, total, fmt.Errorf("deps: replacing dependency rows: %w", err)
	}

	r.logger.Info("dependency scan complete", "project_id", projectID, "manifests", manifests, "dependencies", total)
	return manifests, total, nil
}

// findManifests walks projectPath, skipping hidden and build-output
// directories, and returns every idf_component.yml it finds.
func (r *Resolver) findManifests(projectPath string) ([]string, error) {
	if _, err := os.Stat(projectPath); err != nil {
		return nil, err
	}

	var found []string
	err := filepath.WalkDir(projectPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if name != "." && (name[0] == '.' || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == manifestName {
			found = append(found, path)
		}
		return nil
	})
	return found, err
}

// manifest is the subset of idf_component.yml this resolver cares
// about. ESP-IDF manifests carry other top-level keys (version,
// description, maintainers, ...) that are irrelevant here.
type manifest struct {
	Dependencies map[string]yaml.Node `yaml:"dependencies"`
}

// dependencySpec is the shape of a complex (mapping-valued)
// dependency entry, e.g.:
//
//	my_component:
//	  version: "^1.0.0"
//	  git: "https://github.com/user/repo.git"
type dependencySpec struct {
	Version string `yaml:"version"`
	Git     string `yaml:"git"`
	Path    string `yaml:"path"`
}

// parseManifest reads and extracts dependency records from one
// idf_component.yml file.
func parseManifest(path string) ([]*store.Dependency, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var out []*store.Dependency
	for name, node := range m.Dependencies {
		dep := &store.Dependency{
			ComponentName: name,
			VersionSpec:   "*",
			SourceTag:     "component-registry",
		}

		switch node.Kind {
		case yaml.ScalarNode:
			// Simple version string: "component_name: '^1.0.0'"
			var version string
			if err := node.Decode(&version); err == nil && version != "" {
				dep.VersionSpec = version
			}
		case yaml.MappingNode:
			var spec dependencySpec
			if err := node.Decode(&spec); err != nil {
				return nil, fmt.Errorf("parsing dependency %q in %s: %w", name, path, err)
			}
			if spec.Version != "" {
				dep.VersionSpec = spec.Version
			}
			switch {
			case spec.Git != "":
				dep.SourceTag = "git:" + spec.Git
			case spec.Path != "":
				dep.SourceTag = "path:" + spec.Path
			}
		}

		out = append(out, dep)
	}
	return out, nil
}
