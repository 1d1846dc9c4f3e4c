// Package config provides read/write access to loom's per-repository
// configuration file, stored as JSON inside the .git directory
// alongside the rest of the engine's generated state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const configFileName = ".loom_config"

// EngineConfig holds workspace-engine-wide tunables. All fields are
// optional; zero values fall back to the defaults below.
type EngineConfig struct {
	// DatabasePath overrides the default metadata-store location
	// (".git/loom/workspace.db" relative to the repo root).
	DatabasePath string `json:"databasePath,omitempty"`
	// MirrorPath overrides the default TOML mirror location
	// (".git/loom/virtual_branches.toml" relative to the repo root).
	MirrorPath string `json:"mirrorPath,omitempty"`
	// WorkspaceRef overrides the default workspace ref name.
	WorkspaceRef string `json:"workspaceRef,omitempty"`
	// MaxOplogDepth overrides the default bounded oplog retention.
	MaxOplogDepth *int `json:"maxOplogDepth,omitempty"`
	// ForcePushAllowed controls whether stack.Squash may rewrite a
	// commit already pushed upstream (internal/stack.PushPolicy).
	ForcePushAllowed *bool `json:"forcePushAllowed,omitempty"`
}

// Defaults applied when a field is unset.
const (
	DefaultDatabasePath  = ".git/loom/workspace.db"
	DefaultMirrorPath    = ".git/loom/virtual_branches.toml"
	DefaultWorkspaceRef  = "refs/heads/loom/workspace"
	DefaultMaxOplogDepth = 100
)

func configPath(repoRoot string) string {
	return filepath.Join(repoRoot, ".git", configFileName)
}

// Load reads the repository configuration, returning defaults (not an
// error) if the file does not exist.
func Load(repoRoot string) (*EngineConfig, error) {
	data, err := os.ReadFile(configPath(repoRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return &EngineConfig{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg EngineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes the repository configuration, creating the parent
// directory if necessary.
func Save(repoRoot string, cfg *EngineConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	path := configPath(repoRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// DatabasePathOrDefault resolves the effective database path: the
// configured override as given, or the default joined onto repoRoot.
func (c *EngineConfig) DatabasePathOrDefault(repoRoot string) string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return filepath.Join(repoRoot, DefaultDatabasePath)
}

// MirrorPathOrDefault resolves the effective, absolute mirror path.
func (c *EngineConfig) MirrorPathOrDefault(repoRoot string) string {
	if c.MirrorPath != "" {
		return c.MirrorPath
	}
	return filepath.Join(repoRoot, DefaultMirrorPath)
}

// WorkspaceRefOrDefault resolves the effective workspace ref name.
func (c *EngineConfig) WorkspaceRefOrDefault() string {
	if c.WorkspaceRef != "" {
		return c.WorkspaceRef
	}
	return DefaultWorkspaceRef
}

// MaxOplogDepthOrDefault resolves the effective oplog retention depth.
func (c *EngineConfig) MaxOplogDepthOrDefault() int {
	if c.MaxOplogDepth != nil {
		return *c.MaxOplogDepth
	}
	return DefaultMaxOplogDepth
}

// ForcePushAllowedOrDefault resolves whether force-pushing pushed
// commits is permitted. Defaults to false (conservative).
func (c *EngineConfig) ForcePushAllowedOrDefault() bool {
	if c.ForcePushAllowed != nil {
		return *c.ForcePushAllowed
	}
	return false
}
