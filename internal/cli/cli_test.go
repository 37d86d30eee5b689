package cli

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pixelmap/internal/config"
)

func testRoot(t *testing.T, cfg *config.Config) *Root {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Root{cfg: cfg, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func execute(t *testing.T, cfg *config.Config, args ...string) error {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	cmd := NewRootCmd(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestVersionCommand(t *testing.T) {
	if err := execute(t, nil, "version"); err != nil {
		t.Fatalf("version: %v", err)
	}
}

func TestServeRequiresPasskeyURL(t *testing.T) {
	err := execute(t, &config.Config{}, "serve")
	if err == nil || !strings.Contains(err.Error(), "passkey_url") {
		t.Fatalf("expected passkey config error, got %v", err)
	}
}

func TestWatchRequiresDirectories(t *testing.T) {
	err := execute(t, &config.Config{}, "watch")
	if err == nil || !strings.Contains(err.Error(), "directories") {
		t.Fatalf("expected missing dirs error, got %v", err)
	}
}

func TestWatchRequiresServerAndToken(t *testing.T) {
	err := execute(t, nil, "watch", "--dir", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "--server") {
		t.Fatalf("expected server/token error, got %v", err)
	}
}

func TestImportRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pixmap")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	err := execute(t, nil, "import", path, "--server", "http://127.0.0.1:1", "--token", "tok")
	if err == nil || !strings.Contains(err.Error(), "not valid JSON") {
		t.Fatalf("expected JSON validation error, got %v", err)
	}
}

func TestRenderRequiresAPIKey(t *testing.T) {
	err := execute(t, &config.Config{}, "render", "photo.jpg")
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected api key error, got %v", err)
	}
}

func TestConfigShowRuns(t *testing.T) {
	root := testRoot(t, &config.Config{})
	root.configShow()
}
