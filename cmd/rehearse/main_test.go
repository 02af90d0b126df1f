package main

import (
	"testing"

	"github.com/teslashibe/go-rehearse/internal/config"
	"github.com/teslashibe/go-rehearse/internal/log"
	"github.com/teslashibe/go-rehearse/pkg/inference"
	"github.com/teslashibe/go-rehearse/pkg/media"
)

func TestInferenceProvider(t *testing.T) {
	tests := []struct {
		name      string
		primary   string
		fallbacks int
		wantChain bool
		wantErr   bool
	}{
		{"primary only", "sk", 0, false, false},
		{"fallback only", "", 1, false, false},
		{"primary and fallback", "sk", 2, true, false},
		{"nothing", "", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Inference.APIKey = tt.primary
			for i := 0; i < tt.fallbacks; i++ {
				cfg.Fallback = append(cfg.Fallback, config.InferenceConfig{
					Name:    "local",
					BaseURL: "http://localhost:11434/v1",
					Model:   "llama3",
				})
			}
			p, err := inferenceProvider(cfg, log.Discard())
			if (err != nil) != tt.wantErr {
				t.Fatalf("inferenceProvider() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if _, isChain := p.(*inference.Chain); isChain != tt.wantChain {
				t.Errorf("provider = %T, want chain %v", p, tt.wantChain)
			}
		})
	}
}

func TestCamera(t *testing.T) {
	if camera(config.CameraNone) != nil {
		t.Error("none backend should have no camera")
	}
	if _, ok := camera(config.CameraMock).(*media.MockCamera); !ok {
		t.Error("mock backend should return a MockCamera")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("court", 10); got != "court" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("une synthèse\ntrès longue", 8); got != "une syn…" {
		t.Errorf("truncate() = %q", got)
	}
}
