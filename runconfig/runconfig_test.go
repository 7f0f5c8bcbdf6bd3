package runconfig

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]string{"-config", "/nonexistent.yaml"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Topology != "normal" {
		t.Errorf("Topology = %q, want normal", cfg.Topology)
	}
	if !cfg.RateLimiterEnabled {
		t.Error("expected rate limiter enabled by default")
	}
}

func TestLoadRejectsBadTopology(t *testing.T) {
	_, err := Load([]string{"-config", "/nonexistent.yaml", "-topology", "bogus"})
	if err == nil {
		t.Fatal("expected an error for an invalid topology")
	}
}

func TestLoadAppliesFlagOverrides(t *testing.T) {
	cfg, err := Load([]string{"-config", "/nonexistent.yaml", "-imix", "-topology", "ate", "-warmup", "5"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.IMIXEnabled {
		t.Error("expected IMIXEnabled after -imix")
	}
	if cfg.Topology != "ate" {
		t.Errorf("Topology = %q, want ate", cfg.Topology)
	}
	if cfg.WarmupSeconds != 5 {
		t.Errorf("WarmupSeconds = %d, want 5", cfg.WarmupSeconds)
	}
}
