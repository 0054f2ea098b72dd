package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"azvm/internal/config"
	"azvm/internal/state"

	"github.com/spf13/cobra"
)

func TestApplyProvisionFlags(t *testing.T) {
	tests := []struct {
		name          string
		args          []string
		configPacing  time.Duration
		wantLifecycle bool
		wantPacing    time.Duration
	}{
		{
			name:          "no flags keeps config",
			args:          nil,
			configPacing:  30 * time.Second,
			wantLifecycle: true,
			wantPacing:    30 * time.Second,
		},
		{
			name:          "skip lifecycle",
			args:          []string{"--skip-lifecycle"},
			configPacing:  30 * time.Second,
			wantLifecycle: false,
			wantPacing:    30 * time.Second,
		},
		{
			name:          "pacing overrides config",
			args:          []string{"--pacing", "2m"},
			configPacing:  30 * time.Second,
			wantLifecycle: true,
			wantPacing:    2 * time.Minute,
		},
		{
			name:          "explicit zero pacing overrides config",
			args:          []string{"--pacing", "0s"},
			configPacing:  30 * time.Second,
			wantLifecycle: true,
			wantPacing:    0,
		},
		{
			name:          "both flags",
			args:          []string{"--skip-lifecycle", "--pacing", "5s"},
			configPacing:  0,
			wantLifecycle: false,
			wantPacing:    5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &cobra.Command{Use: "provision"}
			addProvisionFlags(c)
			if err := c.Flags().Parse(tt.args); err != nil {
				t.Fatalf("Parse(%v) unexpected error = %v", tt.args, err)
			}

			cfg := config.Default()
			cfg.Lifecycle.Pacing = tt.configPacing
			applyProvisionFlags(c, cfg)

			if cfg.Lifecycle.Enabled != tt.wantLifecycle {
				t.Errorf("Lifecycle.Enabled = %v, want %v", cfg.Lifecycle.Enabled, tt.wantLifecycle)
			}
			if cfg.Lifecycle.Pacing != tt.wantPacing {
				t.Errorf("Lifecycle.Pacing = %v, want %v", cfg.Lifecycle.Pacing, tt.wantPacing)
			}
		})
	}
}

func TestLoadRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := state.NewFileStore(path)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2"} {
		if err := store.SaveRun(context.Background(), state.NewRun(id, "SDK-VM", now.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("SaveRun(%s) unexpected error = %v", id, err)
		}
	}

	cfg := config.Default()
	cfg.State = config.StateConfig{Backend: config.StateBackendFile, Path: path}

	rec, err := loadRun(cfg, []string{"run-1"})
	if err != nil || rec.ID != "run-1" {
		t.Errorf("loadRun(run-1) = %v, %v", rec, err)
	}
	rec, err = loadRun(cfg, nil)
	if err != nil || rec.ID != "run-2" {
		t.Errorf("loadRun(latest) = %v, %v", rec, err)
	}
	if _, err := loadRun(cfg, []string{"missing"}); !errors.Is(err, state.ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}

	cfg.State.Backend = "redis"
	if _, err := loadRun(cfg, nil); err == nil {
		t.Error("Expected error for unsupported backend")
	}
}
