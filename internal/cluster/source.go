package cluster

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk product of the offline clustering job: the cluster
// profiles plus the per-student assignments.
type File struct {
	Profiles    []Profile     `json:"profiles" yaml:"profiles"`
	Assignments map[int64]int `json:"assignments" yaml:"assignments"`
}

// LoadFile reads a clustering output file (YAML).
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse cluster file %s: %w", path, err)
	}
	if len(f.Profiles) == 0 {
		return nil, fmt.Errorf("cluster file %s has no profiles", path)
	}
	return &f, nil
}

// StaticSource serves cluster assignments from a loaded file. Students the
// offline job never saw map to the excluded cluster, which classifies as
// medium.
type StaticSource struct {
	assignments map[int64]int
	excluded    int
}

// NewStaticSource builds a source from a clustering file.
func NewStaticSource(f *File, excludedID int) *StaticSource {
	return &StaticSource{assignments: f.Assignments, excluded: excludedID}
}

// ClusterID returns the student's assigned cluster.
func (s *StaticSource) ClusterID(_ context.Context, userID int64) (int, error) {
	if id, ok := s.assignments[userID]; ok {
		return id, nil
	}
	return s.excluded, nil
}
