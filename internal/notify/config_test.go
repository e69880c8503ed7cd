package notify

import (
	"testing"
	"time"
)

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	if cfg.BufferSize != 1000 {
		t.Errorf("expected default buffer size 1000, got %d", cfg.BufferSize)
	}
	if cfg.Workers != 4 {
		t.Errorf("expected default workers 4, got %d", cfg.Workers)
	}
	if cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("expected default timeout 10s, got %v", cfg.HTTPTimeout)
	}

	cfg = Config{BufferSize: 50, Workers: 2, HTTPTimeout: time.Second}.withDefaults()
	if cfg.BufferSize != 50 || cfg.Workers != 2 || cfg.HTTPTimeout != time.Second {
		t.Errorf("explicit values were overridden: %+v", cfg)
	}
}
