package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Port    string        `env:"CLINICBOOK_TEST_PORT" envDefault:"8083"`
	Secret  string        `env:"CLINICBOOK_TEST_SECRET,required"`
	Window  time.Duration `env:"CLINICBOOK_TEST_WINDOW" envDefault:"1m"`
	Origins []string      `env:"CLINICBOOK_TEST_ORIGINS" envSeparator:","`
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("CLINICBOOK_TEST_SECRET", "s3cret")

	var cfg testConfig
	if err := Load(&cfg, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8083" {
		t.Fatalf("expected default port, got %q", cfg.Port)
	}
	if cfg.Window != time.Minute {
		t.Fatalf("expected 1m window, got %s", cfg.Window)
	}
}

func TestLoadRequiresMissingVariables(t *testing.T) {
	var cfg testConfig
	if err := Load(&cfg, filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatalf("expected error for missing required variable")
	}
}

func TestLoadEnvironmentWinsOverDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	content := "CLINICBOOK_TEST_PORT=9000\nCLINICBOOK_TEST_SECRET=from-file\nCLINICBOOK_TEST_ORIGINS=http://a.test,http://b.test\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	t.Setenv("CLINICBOOK_TEST_PORT", "9100")
	// godotenv sets variables that are absent; register cleanup for them.
	t.Setenv("CLINICBOOK_TEST_SECRET", "")
	os.Unsetenv("CLINICBOOK_TEST_SECRET")
	t.Setenv("CLINICBOOK_TEST_ORIGINS", "")
	os.Unsetenv("CLINICBOOK_TEST_ORIGINS")

	var cfg testConfig
	if err := Load(&cfg, path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9100" {
		t.Fatalf("expected environment port, got %q", cfg.Port)
	}
	if cfg.Secret != "from-file" {
		t.Fatalf("expected secret from dotenv, got %q", cfg.Secret)
	}
	if len(cfg.Origins) != 2 || cfg.Origins[1] != "http://b.test" {
		t.Fatalf("unexpected origins: %v", cfg.Origins)
	}
}

func TestValidatePort(t *testing.T) {
	if err := ValidatePort("PORT", "8083"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, bad := range []string{"", "0", "70000", "http"} {
		if err := ValidatePort("PORT", bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
