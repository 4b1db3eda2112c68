package main

import "testing"

func TestParseFlagsDefaults(t *testing.T) {
	cfg, exit, code := parseFlags(nil)
	if exit {
		t.Fatalf("expected no exit, got code %d", code)
	}
	if cfg.CodePath != "" {
		t.Fatalf("expected empty default code path, got %q", cfg.CodePath)
	}
	sched := cfg.resolveSchedule()
	if sched.DeletionQueueDepth == 0 {
		t.Fatal("expected a non-zero default deletion queue depth")
	}
	if err := sched.Validate(); err != nil {
		t.Fatalf("default schedule should validate: %v", err)
	}
}

func TestParseFlagsOverridesSchedule(t *testing.T) {
	cfg, exit, code := parseFlags([]string{
		"--code", "/tmp/does-not-matter.wasm",
		"--deletion-queue-depth", "7",
		"--deposit-per-byte", "3",
		"--max-code-len", "1024",
	})
	if exit {
		t.Fatalf("expected no exit, got code %d", code)
	}
	sched := cfg.resolveSchedule()
	if sched.DeletionQueueDepth != 7 {
		t.Fatalf("deletion queue depth = %d, want 7", sched.DeletionQueueDepth)
	}
	if sched.DepositPerByte != 3 {
		t.Fatalf("deposit per byte = %d, want 3", sched.DepositPerByte)
	}
	if sched.MaxCodeLen != 1024 {
		t.Fatalf("max code len = %d, want 1024", sched.MaxCodeLen)
	}
}

func TestParseFlagsVersion(t *testing.T) {
	_, exit, code := parseFlags([]string{"--version"})
	if !exit || code != 0 {
		t.Fatalf("expected exit(0) for --version, got exit=%v code=%d", exit, code)
	}
}

func TestRunRequiresCode(t *testing.T) {
	if code := run(nil); code != 2 {
		t.Fatalf("run() without --code = %d, want 2", code)
	}
}
