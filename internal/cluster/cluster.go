// Package cluster classifies behavioral cluster ids into coarse performance
// tiers. Cluster discovery itself happens offline; this package only consumes
// the resulting per-cluster profiles (mean grades of the students assigned to
// each cluster) and derives a weak/medium/strong split.
package cluster

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Tier is a coarse performance classification of a cluster.
type Tier string

const (
	TierWeak   Tier = "weak"
	TierMedium Tier = "medium"
	TierStrong Tier = "strong"
)

// AllTiers lists the tiers from weakest to strongest.
func AllTiers() []Tier {
	return []Tier{TierWeak, TierMedium, TierStrong}
}

// Profile is the offline summary of one discovered cluster: the grades of
// the students it contains. Grades are on whatever scale the course uses;
// only their relative ordering matters here.
type Profile struct {
	ClusterID int       `json:"cluster_id" yaml:"cluster_id"`
	Grades    []float64 `json:"grades" yaml:"grades"`
}

// Classifier maps cluster ids to tiers. Built once from offline profiles;
// read-only afterwards, safe for concurrent use.
type Classifier struct {
	tiers    map[int]Tier
	excluded int
}

// NewClassifier ranks clusters by mean grade and splits them into three
// equal terciles: bottom third weak, middle third medium, top third strong.
// The excluded cluster id (the designated non-learner cluster) never takes
// part in the ranking and always classifies as medium.
func NewClassifier(profiles []Profile, excludedID int) (*Classifier, error) {
	type ranked struct {
		id   int
		mean float64
	}

	var rankings []ranked
	for _, p := range profiles {
		if p.ClusterID == excludedID {
			continue
		}
		if len(p.Grades) == 0 {
			return nil, fmt.Errorf("cluster %d has no grades", p.ClusterID)
		}
		rankings = append(rankings, ranked{id: p.ClusterID, mean: stat.Mean(p.Grades, nil)})
	}
	if len(rankings) == 0 {
		return nil, fmt.Errorf("no rankable cluster profiles")
	}

	sort.Slice(rankings, func(i, j int) bool { return rankings[i].mean < rankings[j].mean })

	tiers := make(map[int]Tier, len(rankings))
	n := len(rankings)
	for i, r := range rankings {
		switch {
		case i < n/3:
			tiers[r.id] = TierWeak
		case i < 2*n/3:
			tiers[r.id] = TierMedium
		default:
			tiers[r.id] = TierStrong
		}
	}

	return &Classifier{tiers: tiers, excluded: excludedID}, nil
}

// Classify returns the tier for a cluster id. Unknown ids and the excluded
// cluster map to medium — the conservative default for students whose
// behavioral profile carries no signal.
func (c *Classifier) Classify(clusterID int) Tier {
	if tier, ok := c.tiers[clusterID]; ok {
		return tier
	}
	return TierMedium
}

// ExcludedClusterID returns the designated non-learner cluster id.
func (c *Classifier) ExcludedClusterID() int { return c.excluded }
