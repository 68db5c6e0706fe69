package daemonctl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gameshelf/internal/testsupport"
)

func TestProcessInfoWithoutSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "missing.sock")
	alive, pid, err := ProcessInfo(socket)
	if err != nil || alive || pid != 0 {
		t.Fatalf("ProcessInfo = %v, %d, %v", alive, pid, err)
	}
	if err := WaitForShutdown(socket, 50*time.Millisecond); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestStopAndTerminateNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := StopAndTerminate(cfg.Paths.SocketPath, cfg, 50*time.Millisecond)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestReadPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gameshelfd.pid")
	if got := readPID(path); got != 0 {
		t.Fatalf("missing pid file = %d", got)
	}
	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := readPID(path); got != 4242 {
		t.Fatalf("readPID = %d", got)
	}
	if err := signalProcess(os.Getpid(), 0); err == nil {
		t.Fatal("expected refusal to signal own process")
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := Launch(" ", LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUnit("pc", "pc"))
	status, err := BuildStatusSnapshot(context.Background(), cfg.Paths.SocketPath, cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if status.Running {
		t.Fatal("offline snapshot should not report running")
	}
	if status.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("database path = %q", status.DatabasePath)
	}
	if len(status.Checks) == 0 {
		t.Fatal("expected local preflight checks")
	}
	if _, err := BuildStatusSnapshot(context.Background(), cfg.Paths.SocketPath, nil); err == nil {
		t.Fatal("expected error without config")
	}
}
