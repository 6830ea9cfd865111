package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Optimizer.Restarts != nil || len(cfg.Layout.Rows) != 0 {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `[layout]
rows = ["qwertyuiop", "asdfghjkl;", "zxcvbnm,./"]
locks = ["..........", "xxxx......", ".........."]

[corpus]
path = "/tmp/corpus.txt"
trigram-depth = 1000

[optimizer]
strategy = "multistart"
objective = "score"
restarts = 500
workers = 4
seed = 7

[telemetry]
metrics-addr = "localhost:9090"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Layout.Rows) != 3 || cfg.Layout.Locks[1] != "xxxx......" {
		t.Fatalf("unexpected layout section: %+v", cfg.Layout)
	}
	if cfg.Corpus.Path == nil || *cfg.Corpus.Path != "/tmp/corpus.txt" {
		t.Fatalf("unexpected corpus path: %v", cfg.Corpus.Path)
	}
	if cfg.Optimizer.Restarts == nil || *cfg.Optimizer.Restarts != 500 {
		t.Fatalf("unexpected restarts: %v", cfg.Optimizer.Restarts)
	}
	if cfg.Optimizer.Seed == nil || *cfg.Optimizer.Seed != 7 {
		t.Fatalf("unexpected seed: %v", cfg.Optimizer.Seed)
	}
	if cfg.Optimizer.Depth != nil {
		t.Fatalf("expected depth unset")
	}
}

func TestLoadConfigValidates(t *testing.T) {
	cases := map[string]string{
		"strategy": "[optimizer]\nstrategy = \"anneal\"\n",
		"workers":  "[optimizer]\nworkers = 0\n",
		"rows":     "[layout]\nrows = [\"qwerty\", \"asdfghjkl;\", \"zxcvbnm,./\"]\n",
		"depth":    "[optimizer]\ndepth = 12\n",
	}
	for name, data := range cases {
		path := filepath.Join(t.TempDir(), name+".toml")
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		_, err := LoadConfig(path)
		if err == nil || !strings.Contains(err.Error(), "invalid config") {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DefaultConfigPath(); got != filepath.Join("/cfg", "kbopt", "config.toml") {
		t.Fatalf("unexpected config path %q", got)
	}
	if got := DefaultDBPath(); got != filepath.Join("/data", "kbopt", "kbopt.db") {
		t.Fatalf("unexpected db path %q", got)
	}
}
