package project

import (
	"errors"
	"fmt"
	"os"

	"github.com/openmined/forcesync/internal/manifest"
	"github.com/openmined/forcesync/internal/utils"
)

var (
	ErrNoSrc       = errors.New("config: src is required")
	ErrNoChangeDir = errors.New("config: changeDir is required")
)

// Config is the project configuration file. Relative paths are resolved
// against the project root folder.
type Config struct {
	Src                string               `json:"src"`
	ChangeDir          string               `json:"changeDir"`
	PullOnInit         bool                 `json:"pullOnInit"`
	CreateMetaXML      bool                 `json:"createMetaXml"`
	DeleteSrcOnReset   bool                 `json:"deleteSrcOnReset"`
	KeepConflictCopies bool                 `json:"keepConflictCopies"`
	Concurrency        int                  `json:"concurrency,omitempty"`
	APIVersion         string               `json:"apiVersion,omitempty"`
	Manifest           *manifest.Descriptor `json:"manifest,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Src:              "src",
		ChangeDir:        "changes",
		PullOnInit:       false,
		CreateMetaXML:    true,
		DeleteSrcOnReset: true,
		APIVersion:       manifest.DefaultVersion,
	}
}

func (c *Config) Validate() error {
	if c.Src == "" {
		return ErrNoSrc
	}
	if c.ChangeDir == "" {
		return ErrNoChangeDir
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("config: concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.Manifest != nil {
		if err := c.Manifest.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// LoadConfig reads and validates the config file at path. Fields missing from
// the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := DefaultConfig()
	if err := utils.JSONUnmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := utils.JSONMarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return utils.WriteFileAtomic(path, data, 0o644)
}
