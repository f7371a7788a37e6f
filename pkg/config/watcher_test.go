package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcher_ReloadOnWrite(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "mast.cue")

	initial := `
services: {
	do: {
		name: "do"
		provider: "digitalocean"
		credentials: {token: "old-token"}
	}
}
`
	if err := os.WriteFile(configFile, []byte(initial), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	parser := NewCUEParser()
	watcher := NewWatcher(parser, []string{configFile}, zerolog.Nop())
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *ParsedConfig, 1)
	err := watcher.Watch(ctx, func(pc *ParsedConfig) error {
		select {
		case reloaded <- pc:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}

	// Rotate the token
	rotated := `
services: {
	do: {
		name: "do"
		provider: "digitalocean"
		credentials: {token: "new-token"}
	}
}
`
	if err := os.WriteFile(configFile, []byte(rotated), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case pc := <-reloaded:
		svc := pc.Service("do")
		if svc == nil {
			t.Fatal("reloaded config lost service")
		}
		if svc.Credentials.Token != "new-token" {
			t.Errorf("expected rotated token, got %s", svc.Credentials.Token)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not trigger reload")
	}
}

func TestWatcher_InvalidConfigKeepsOld(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "mast.cue")

	initial := `
services: {
	gl: {
		name: "gl"
		provider: "gitlab"
		credentials: {token: "glpat"}
	}
}
`
	if err := os.WriteFile(configFile, []byte(initial), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	parser := NewCUEParser()
	watcher := NewWatcher(parser, []string{configFile}, zerolog.Nop())
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloads := make(chan struct{}, 4)
	err := watcher.Watch(ctx, func(pc *ParsedConfig) error {
		reloads <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}

	// A broken write must not reach the callback
	if err := os.WriteFile(configFile, []byte("services: { this is broken"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case <-reloads:
		t.Error("broken config should not trigger a reload callback")
	case <-time.After(1500 * time.Millisecond):
	}
}
