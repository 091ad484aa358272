package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/tutorloop/tutorloop/internal/agent"
)

// ExportModel writes the persisted model snapshot as indented JSON,
// suitable for inspection or transfer between deployments.
func (s *Store) ExportModel(ctx context.Context, w io.Writer) error {
	snap, found, err := s.LoadModel(ctx)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoModel
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return nil
}

// ExportModelFile writes the model snapshot to a file, atomically via a
// temp file rename.
func (s *Store) ExportModelFile(ctx context.Context, path string) error {
	tmp, err := os.CreateTemp("", "tutorloop-model-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.ExportModel(ctx, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	return nil
}

// ImportModelFile reads a JSON model export and persists it, replacing the
// current model.
func (s *Store) ImportModelFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model file: %w", err)
	}

	var snap agent.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("corrupt model file %s: %w", path, err)
	}
	return s.SaveModel(ctx, snap)
}
