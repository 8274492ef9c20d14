package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"HOST", "PORT", "GRPC_PORT", "TEMPLATES_DIR", "LOG_LEVEL", "GRAPHQL_URL"} {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("got %+v, want %+v", cfg, Default())
	}
	if cfg.Port != 8787 || cfg.GRPCPort != 8788 || cfg.Host != "0.0.0.0" || cfg.LogLevel != "info" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calc-engine.yaml")
	src := "host: 127.0.0.1\nport: 9000\ntemplatesDir: ./templates\nlogLevel: debug\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	clearEnv(t)
	t.Setenv("GRPC_PORT", "9100")
	t.Setenv("GRAPHQL_URL", "http://localhost:4000/graphql")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != 9000 || cfg.TemplatesDir != "./templates" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.GRPCPort != 9100 || cfg.GraphQLURL != "http://localhost:4000/graphql" {
		t.Errorf("env values not applied: %+v", cfg)
	}
	if lvl, _ := cfg.Level(); lvl != zerolog.DebugLevel {
		t.Errorf("level = %v, want debug", lvl)
	}
	if cfg.Addr() != "127.0.0.1:9000" || cfg.GRPCAddr() != "127.0.0.1:9100" {
		t.Errorf("addresses: %s %s", cfg.Addr(), cfg.GRPCAddr())
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("expected error")
		}
	})

	clearEnv(t)

	t.Run("bad port env", func(t *testing.T) {
		t.Setenv("PORT", "http")
		if _, err := Load(""); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("bad log level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "loud")
		if _, err := Load(""); err == nil {
			t.Error("expected error")
		}
	})
}

func TestGRPCDisabled(t *testing.T) {
	cfg := Default()
	cfg.GRPCPort = 0
	if addr := cfg.GRPCAddr(); addr != "" {
		t.Errorf("GRPCAddr = %q, want empty", addr)
	}
}
