package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RepoSettingsFileName is the optional per-repository settings file,
// checked at the repository root.
const RepoSettingsFileName = ".braid.yaml"

// RepoSettings overrides engine defaults for one repository.
type RepoSettings struct {
	// WorkspaceStrategy is one of create, use-existing, never, ask.
	WorkspaceStrategy string `yaml:"workspace_strategy,omitempty"`
	// MergeTarget overrides the branch merged into on completion.
	MergeTarget string `yaml:"merge_target,omitempty"`
}

var validStrategies = map[string]bool{
	"":             true,
	"create":       true,
	"use-existing": true,
	"never":        true,
	"ask":          true,
}

// LoadRepoSettings reads .braid.yaml from the repository root. A missing
// file returns zero-value settings; a malformed file or unknown strategy
// is an error.
func LoadRepoSettings(repoRoot string) (RepoSettings, error) {
	var settings RepoSettings

	path := filepath.Join(repoRoot, RepoSettingsFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if !validStrategies[settings.WorkspaceStrategy] {
		return RepoSettings{}, fmt.Errorf("%s: unknown workspace_strategy %q", path, settings.WorkspaceStrategy)
	}
	return settings, nil
}
