package staging

import (
	"fmt"

	"serac-go/internal/config"
	"serac-go/internal/serac"
)

// NewStagingAreaFromConfig creates a StagingArea implementation based on the config type.
func NewStagingAreaFromConfig(cfg config.StagingConfig, fsmgr serac.FilesystemManager) (serac.StagingArea, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStagingArea(fsmgr), nil
	case "filesystem":
		if cfg.StagingDir == "" {
			return nil, fmt.Errorf("filesystem staging area requires staging_dir to be set")
		}
		return NewFileSystemStagingArea(fsmgr, cfg.StagingDir)
	default:
		return nil, fmt.Errorf("unknown staging area type: %s", cfg.Type)
	}
}
