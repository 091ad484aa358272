package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero alpha", func(c *Config) { c.Agent.Alpha = 0 }},
		{"gamma above one", func(c *Config) { c.Agent.Gamma = 1.1 }},
		{"negative epsilon", func(c *Config) { c.Agent.Epsilon = -0.1 }},
		{"decay above one", func(c *Config) { c.Agent.EpsilonDecay = 1.5 }},
		{"floor above epsilon", func(c *Config) { c.Agent.EpsilonFloor = 0.9 }},
		{"zero buffer", func(c *Config) { c.Trigger.MinBufferSize = 0 }},
		{"negative elapsed", func(c *Config) { c.Trigger.MaxElapsed = -time.Second }},
		{"zero history", func(c *Config) { c.Engine.HistoryWindow = 0 }},
		{"zero clip", func(c *Config) { c.Reward.Clip = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
agent:
  alpha: 0.2
  epsilon: 0.5
trigger:
  min_buffer_size: 5
reward:
  clip: 8.0
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if c.Agent.Alpha != 0.2 {
		t.Errorf("alpha = %v, want 0.2", c.Agent.Alpha)
	}
	if c.Trigger.MinBufferSize != 5 {
		t.Errorf("min_buffer_size = %d, want 5", c.Trigger.MinBufferSize)
	}
	if c.Reward.Clip != 8.0 {
		t.Errorf("clip = %v, want 8.0", c.Reward.Clip)
	}
	// Unset fields keep defaults.
	if c.Agent.Gamma != 0.9 {
		t.Errorf("gamma = %v, want default 0.9", c.Agent.Gamma)
	}
	if c.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", c.Logging.Level)
	}
}

func TestLoadFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("TUTORLOOP_PROFILES", "/etc/tutorloop/profiles.yaml")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
cluster:
  profiles_path: ${TUTORLOOP_PROFILES}
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if c.Cluster.ProfilesPath != "/etc/tutorloop/profiles.yaml" {
		t.Errorf("profiles_path = %q, want expanded env value", c.Cluster.ProfilesPath)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	c, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Agent.Alpha != 0.1 {
		t.Errorf("alpha = %v, want default 0.1", c.Agent.Alpha)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TUTORLOOP_LOG_LEVEL", "trace")
	t.Setenv("TUTORLOOP_EPSILON", "0.7")

	c, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Logging.Level != "trace" {
		t.Errorf("level = %q, want trace", c.Logging.Level)
	}
	if c.Agent.Epsilon != 0.7 {
		t.Errorf("epsilon = %v, want 0.7", c.Agent.Epsilon)
	}
}
