package staging

import (
	"fmt"

	"launcher-core/internal/config"
)

// NewStagingAreaFromConfig creates the staging area described by cfg.
func NewStagingAreaFromConfig(cfg config.StagingConfig) (*FileSystemStagingArea, error) {
	if cfg.StagingDir == "" {
		return nil, fmt.Errorf("staging area requires staging_dir to be set")
	}
	if cfg.MaxSize < 0 {
		return nil, fmt.Errorf("staging max_size must not be negative")
	}
	return NewFileSystemStagingArea(cfg.StagingDir, cfg.MaxSize)
}
