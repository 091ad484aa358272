// Package backup manages timestamped snapshots of the learned model.
// A snapshot is taken automatically before destructive model operations
// (reset, import) so a bad import or an accidental reset is recoverable.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const filePrefix = "model-"

// Exporter is the slice of the store a backup needs.
type Exporter interface {
	ExportModelFile(ctx context.Context, path string) error
}

// Dir returns the backup directory under the deployment's data dir.
func Dir(dataDir string) string {
	return filepath.Join(dataDir, "backups")
}

// Take writes a timestamped model snapshot into dir and returns its path.
func Take(ctx context.Context, ex Exporter, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s%s.json", filePrefix, time.Now().Format("20060102-150405")))
	if err := ex.ExportModelFile(ctx, path); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	return path, nil
}

// Info holds per-snapshot metadata for retention decisions.
type Info struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}

// List scans dir for model snapshots, sorted newest first. A missing
// directory is an empty list, not an error.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || filepath.Ext(name) != ".json" {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(dir, name),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		})
	}

	// Timestamp is embedded in the name, so name order is age order.
	sort.Slice(backups, func(i, j int) bool {
		return filepath.Base(backups[i].Path) > filepath.Base(backups[j].Path)
	})
	return backups, nil
}

// Rotate deletes snapshots not kept by the policy and returns the paths
// it removed.
func Rotate(dir string, policy RetentionPolicy) (deleted []string, err error) {
	backups, err := List(dir)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool)
	for _, b := range policy.Apply(backups) {
		keep[b.Path] = true
	}
	for _, b := range backups {
		if keep[b.Path] {
			continue
		}
		if err := os.Remove(b.Path); err != nil {
			return deleted, fmt.Errorf("failed to remove %s: %w", filepath.Base(b.Path), err)
		}
		deleted = append(deleted, b.Path)
	}
	return deleted, nil
}
