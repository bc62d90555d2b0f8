package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tinoosan/bookkeeper/internal/service/mapping"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "HTTP_ADDR", "LOG_LEVEL", "LOG_FORMAT", "FUNCTIONAL_CURRENCY",
		"DEFAULT_PARENT_ACCOUNT", "MAPPING_PRECEDENCE"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.FunctionalCurrency != "USD" || cfg.DefaultParentAccount != "Discretionary Costs" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MappingPrecedence != mapping.PrecedenceLongest {
		t.Fatalf("precedence: %s", cfg.MappingPrecedence)
	}
	if b, _, _ := cfg.Backend(); b != BackendMemory {
		t.Fatalf("backend: %s", b)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	for _, k := range []string{"DATABASE_URL", "FUNCTIONAL_CURRENCY", "MAPPING_PRECEDENCE"} {
		os.Unsetenv(k)
	}
	path := filepath.Join(t.TempDir(), ".env")
	body := "DATABASE_URL=sqlite:///tmp/books.db\nFUNCTIONAL_CURRENCY=eur\nMAPPING_PRECEDENCE=newest\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("FUNCTIONAL_CURRENCY")
		os.Unsetenv("MAPPING_PRECEDENCE")
	})
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FunctionalCurrency != "EUR" || cfg.MappingPrecedence != mapping.PrecedenceNewest {
		t.Fatalf("env file ignored: %+v", cfg)
	}
	b, dsn, err := cfg.Backend()
	if err != nil || b != BackendSQLite || dsn != "/tmp/books.db" {
		t.Fatalf("backend: %s %s %v", b, dsn, err)
	}
}

func TestValidate(t *testing.T) {
	base := Config{LogFormat: "json", FunctionalCurrency: "USD", DefaultParentAccount: "Discretionary Costs"}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"bad currency", func(c *Config) { c.FunctionalCurrency = "ZZZ" }, true},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"empty parent", func(c *Config) { c.DefaultParentAccount = " " }, true},
		{"postgres", func(c *Config) { c.DatabaseURL = "postgres://u@localhost/db" }, false},
		{"unknown scheme", func(c *Config) { c.DatabaseURL = "mysql://x" }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			err := c.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("wantErr=%v got %v", tc.wantErr, err)
			}
		})
	}
}
