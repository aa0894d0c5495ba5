package process

import (
	"testing"
	"time"
)

func TestNewManager_Defaults(t *testing.T) {
	cfg := Config{
		Name:   "test-proc",
		Binary: "/usr/bin/test",
		Args:   []string{"--flag"},
	}

	m := NewManager(cfg)

	if m.config.Name != "test-proc" {
		t.Errorf("Name = %q, want %q", m.config.Name, "test-proc")
	}
	if m.config.RestartDelay != 5*time.Second {
		t.Errorf("RestartDelay = %v, want %v", m.config.RestartDelay, 5*time.Second)
	}
	if m.config.MaxRestartDelay != 5*time.Minute {
		t.Errorf("MaxRestartDelay = %v, want %v", m.config.MaxRestartDelay, 5*time.Minute)
	}
	if m.config.StableThreshold != 2*time.Minute {
		t.Errorf("StableThreshold = %v, want %v", m.config.StableThreshold, 2*time.Minute)
	}
	if m.config.GracefulTimeout != 10*time.Second {
		t.Errorf("GracefulTimeout = %v, want %v", m.config.GracefulTimeout, 10*time.Second)
	}
	if m.config.HealthCheckInterval != 30*time.Second {
		t.Errorf("HealthCheckInterval = %v, want %v", m.config.HealthCheckInterval, 30*time.Second)
	}
}

func TestDefaultConfig_Function(t *testing.T) {
	cfg := DefaultConfig("monitor", "/usr/bin/bluetoothctl", []string{"--monitor"})

	if cfg.Name != "monitor" {
		t.Errorf("Name = %q, want %q", cfg.Name, "monitor")
	}
	if cfg.Binary != "/usr/bin/bluetoothctl" {
		t.Errorf("Binary = %q, want %q", cfg.Binary, "/usr/bin/bluetoothctl")
	}
	if len(cfg.Args) != 1 || cfg.Args[0] != "--monitor" {
		t.Errorf("Args = %v, want [--monitor]", cfg.Args)
	}
	if !cfg.RestartOnFailure {
		t.Error("RestartOnFailure = false, want true")
	}
	if cfg.MaxRestartAttempts != 10 {
		t.Errorf("MaxRestartAttempts = %d, want 10", cfg.MaxRestartAttempts)
	}
}

func TestManager_InitialState(t *testing.T) {
	m := NewManager(Config{
		Name:   "test",
		Binary: "/bin/true",
	})

	if m.Status() != StatusStopped {
		t.Errorf("initial Status() = %q, want %q", m.Status(), StatusStopped)
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true, want false")
	}
	if m.PID() != 0 {
		t.Errorf("PID() = %d, want 0", m.PID())
	}
	if m.RestartCount() != 0 {
		t.Errorf("RestartCount() = %d, want 0", m.RestartCount())
	}
	if m.Uptime() != 0 {
		t.Errorf("Uptime() = %v, want 0", m.Uptime())
	}
	if m.LastError() != nil {
		t.Errorf("LastError() = %v, want nil", m.LastError())
	}
}

func TestManager_Stats(t *testing.T) {
	m := NewManager(Config{
		Name:   "stats-test",
		Binary: "/bin/echo",
	})

	stats := m.Stats()
	if stats.Name != "stats-test" {
		t.Errorf("Stats.Name = %q, want %q", stats.Name, "stats-test")
	}
	if stats.Status != StatusStopped {
		t.Errorf("Stats.Status = %q, want %q", stats.Status, StatusStopped)
	}
	if stats.PID != 0 {
		t.Errorf("Stats.PID = %d, want 0", stats.PID)
	}
}

func TestRestartDelay_Backoff(t *testing.T) {
	m := NewManager(Config{
		Name:            "backoff",
		Binary:          "/bin/true",
		RestartDelay:    2 * time.Second,
		MaxRestartDelay: 30 * time.Second,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // capped
		{6, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := m.restartDelay(tt.attempt); got != tt.want {
			t.Errorf("restartDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestStop_NotRunning(t *testing.T) {
	m := NewManager(Config{
		Name:   "stop-test",
		Binary: "/bin/true",
	})

	if err := m.Stop(); err != nil {
		t.Errorf("Stop() on stopped manager error = %v", err)
	}
}
