package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"braindrived/internal/ports"
)

// State records which stages have completed, so a re-run resumes instead
// of redoing satisfied work. Flags are set only by the stage that
// completes and are never rolled back automatically; a failed stage is
// simply retried on the next run.
type State struct {
	RuntimeProvisioned    bool       `yaml:"runtime_provisioned"`
	EnvironmentReady      bool       `yaml:"environment_ready"`
	RepoCloned            bool       `yaml:"repo_cloned"`
	BackendDepsInstalled  bool       `yaml:"backend_deps_installed"`
	FrontendDepsInstalled bool       `yaml:"frontend_deps_installed"`
	DependenciesInstalled bool       `yaml:"dependencies_installed"`
	Ports                 ports.Pair `yaml:"ports"`
	UpdatedAt             time.Time  `yaml:"updated_at"`
}

// Complete reports whether every install stage has finished.
func (s *State) Complete() bool {
	return s.RuntimeProvisioned && s.EnvironmentReady && s.RepoCloned && s.DependenciesInstalled
}

// LoadState reads the persisted state; a missing file is a fresh machine.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &State{}, nil
	}
	if err != nil {
		return nil, err
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	return &st, nil
}

// Save writes the state atomically (temp sibling + rename), so a crash
// mid-write never leaves a truncated state file.
func (s *State) Save(path string) error {
	s.UpdatedAt = time.Now()

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
