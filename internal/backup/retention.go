package backup

import "time"

// RetentionPolicy decides which snapshots to keep. Input is sorted
// newest first.
type RetentionPolicy interface {
	Apply(backups []Info) (keep []Info)
}

// CountPolicy keeps the N most recent snapshots.
type CountPolicy struct {
	MaxCount int
}

func (p CountPolicy) Apply(backups []Info) []Info {
	if len(backups) <= p.MaxCount {
		return backups
	}
	return backups[:p.MaxCount]
}

// AgePolicy keeps snapshots newer than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration
}

func (p AgePolicy) Apply(backups []Info) []Info {
	cutoff := time.Now().Add(-p.MaxAge)
	var keep []Info
	for _, b := range backups {
		if b.CreatedAt.After(cutoff) {
			keep = append(keep, b)
		}
	}
	return keep
}

// CompositePolicy keeps a snapshot if ANY sub-policy wants it.
type CompositePolicy struct {
	Policies []RetentionPolicy
}

func (p CompositePolicy) Apply(backups []Info) []Info {
	kept := make(map[string]bool)
	for _, policy := range p.Policies {
		for _, b := range policy.Apply(backups) {
			kept[b.Path] = true
		}
	}
	var result []Info
	for _, b := range backups {
		if kept[b.Path] {
			result = append(result, b)
		}
	}
	return result
}

// DefaultPolicy keeps the last 5 snapshots plus anything under a week old.
func DefaultPolicy() RetentionPolicy {
	return CompositePolicy{Policies: []RetentionPolicy{
		CountPolicy{MaxCount: 5},
		AgePolicy{MaxAge: 7 * 24 * time.Hour},
	}}
}
