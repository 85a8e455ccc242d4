package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFileCandidatesRespectsExistingValues(t *testing.T) {
	isolateEnv(t)
	tmp := t.TempDir()
	envPath := filepath.Join(tmp, "wagateway.env")
	content := `
# comment
export WA_TEST_FOO=bar
WA_TEST_QUOTED="hello world"
`
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	_ = os.Setenv("WAGATEWAY_ENV_FILE", envPath)
	t.Setenv("WA_TEST_FOO", "existing")
	t.Setenv("WA_TEST_QUOTED", "")
	_ = os.Unsetenv("WA_TEST_QUOTED")

	LoadEnvFileCandidates()

	if got := os.Getenv("WA_TEST_FOO"); got != "existing" {
		t.Fatalf("expected existing value preserved, got %q", got)
	}
	if got := os.Getenv("WA_TEST_QUOTED"); got != "hello world" {
		t.Fatalf("expected quoted value loaded, got %q", got)
	}
}

func TestLoadReadsTokenFromHomeEnvFile(t *testing.T) {
	home := isolateEnv(t)
	dir := filepath.Join(home, ConfigDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "env"), []byte("API_TOKEN=from-env-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Gateway.AuthToken != "from-env-file" {
		t.Fatalf("expected token from env file, got %q", cfg.Gateway.AuthToken)
	}
}

func TestEnvFileCandidatesDeduplicate(t *testing.T) {
	isolateEnv(t)
	_ = os.Setenv("WAGATEWAY_ENV_FILE", ".env")

	seen := map[string]int{}
	for _, p := range envFileCandidates() {
		seen[p]++
		if !filepath.IsAbs(p) {
			t.Fatalf("expected absolute candidate, got %q", p)
		}
	}
	for p, n := range seen {
		if n > 1 {
			t.Fatalf("candidate %s listed %d times", p, n)
		}
	}
}
