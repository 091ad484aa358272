package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tutorloop/tutorloop/internal/agent"
	"github.com/tutorloop/tutorloop/internal/catalog"
	"github.com/tutorloop/tutorloop/internal/cluster"
	"github.com/tutorloop/tutorloop/internal/config"
	"github.com/tutorloop/tutorloop/internal/engine"
	"github.com/tutorloop/tutorloop/internal/logging"
	"github.com/tutorloop/tutorloop/internal/reward"
	"github.com/tutorloop/tutorloop/internal/store"
)

// runtime assembles the full engine stack for a deployment root. Every
// command that touches the model goes through here so config loading,
// model restore and mastery restore behave identically everywhere.
type runtime struct {
	cfg       *config.Config
	store     *store.Store
	catalog   *catalog.Catalog
	agent     *agent.Agent
	rewards   *reward.Engine
	engine    *engine.Engine
	decisions *logging.DecisionLogger
}

func newRuntime(root string) (*runtime, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := store.Open(root)
	if err != nil {
		return nil, err
	}

	cat := catalog.New()
	ag := agent.New(cfg.Agent, cat.Size(), 0)

	// A present but unreadable model is fatal: silently learning from
	// scratch would throw away the deployment's training history.
	snap, found, err := st.LoadModel(context.Background())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("saved model is unusable: %w", err)
	}
	if found {
		if err := ag.Restore(snap); err != nil {
			st.Close()
			return nil, fmt.Errorf("saved model is unusable: %w", err)
		}
	}

	rewards := reward.NewEngine(cfg.Reward)
	mastery, err := st.LoadAllMastery(context.Background())
	if err != nil {
		st.Close()
		return nil, err
	}
	rewards.Mastery().Restore(mastery)

	logger := logging.NewLogger(cfg.Logging.Level, os.Stderr)
	decisions := logging.NewDecisionLogger(filepath.Join(root, store.DataDirName), cfg.Logging.Level)

	params := engine.Params{
		Config:    cfg,
		Catalog:   cat,
		Agent:     ag,
		Rewards:   rewards,
		Course:    st.Courses(),
		Observer:  st,
		Logger:    logger,
		Decisions: decisions,
	}

	if cfg.Cluster.ProfilesPath != "" {
		cf, err := cluster.LoadFile(cfg.Cluster.ProfilesPath)
		if err != nil {
			st.Close()
			return nil, err
		}
		classifier, err := cluster.NewClassifier(cf.Profiles, cfg.Cluster.ExcludedClusterID)
		if err != nil {
			st.Close()
			return nil, err
		}
		params.Classifier = classifier
		params.Clusters = cluster.NewStaticSource(cf, cfg.Cluster.ExcludedClusterID)
	}

	eng, err := engine.New(params)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &runtime{
		cfg:       cfg,
		store:     st,
		catalog:   cat,
		agent:     ag,
		rewards:   rewards,
		engine:    eng,
		decisions: decisions,
	}, nil
}

// persist saves the learned model and mastery estimates.
func (r *runtime) persist(ctx context.Context) error {
	if err := r.store.SaveModel(ctx, r.agent.Snapshot()); err != nil {
		return err
	}
	for studentID, estimates := range r.rewards.Mastery().SnapshotAll() {
		if err := r.store.SaveMastery(ctx, studentID, estimates); err != nil {
			return err
		}
	}
	return nil
}

func (r *runtime) close() {
	r.decisions.Close()
	r.store.Close()
}
