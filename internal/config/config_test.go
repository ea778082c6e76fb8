package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("listen:\n  port: 9999\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	dir := t.TempDir()
	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{filepath.Join(dir, "config.yaml")}
	}
	defer func() { searchPathsFunc = orig }()

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_FromSearchPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("listen:\n  port: 8080\n"), 0600)

	orig := searchPathsFunc
	searchPathsFunc = func() []string { return []string{path} }
	defer func() { searchPathsFunc = orig }()

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != path {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, path)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("llm:\n  providers:\n    - name: anthropic\n      api_key: ${THANE_FORGE_TEST_KEY}\n"), 0600)
	os.Setenv("THANE_FORGE_TEST_KEY", "secret123")
	defer os.Unsetenv("THANE_FORGE_TEST_KEY")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(cfg.LLM.Providers) != 1 || cfg.LLM.Providers[0].APIKey != "secret123" {
		t.Errorf("providers = %+v, want api_key secret123", cfg.LLM.Providers)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("log_level: info\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Listen.Port != 8080 {
		t.Errorf("Listen.Port = %d, want 8080", cfg.Listen.Port)
	}
	if cfg.Workflow.QAIterationBound != 3 {
		t.Errorf("Workflow.QAIterationBound = %d, want 3", cfg.Workflow.QAIterationBound)
	}
	if cfg.Workflow.MaxParallelTasks != 4 {
		t.Errorf("Workflow.MaxParallelTasks = %d, want 4", cfg.Workflow.MaxParallelTasks)
	}
	if cfg.EventBus.QueueBound != 256 {
		t.Errorf("EventBus.QueueBound = %d, want 256", cfg.EventBus.QueueBound)
	}
	if cfg.Toolchain.BuildCommand != "idf.py build" {
		t.Errorf("Toolchain.BuildCommand = %q, want idf.py build", cfg.Toolchain.BuildCommand)
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("log_level: verbose\n"), 0600)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load with invalid log_level should error")
	}
}

func TestLoad_MissingProviderName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("llm:\n  providers:\n    - base_url: http://localhost:11434\n"), 0600)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load with unnamed provider should error")
	}
}

func TestValidate_PortRange(t *testing.T) {
	cfg := Default()
	cfg.Listen.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate should reject out-of-range port")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.ProjectsBaseDir == "" {
		t.Error("Default() should set ProjectsBaseDir")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() config should validate: %v", err)
	}
}
