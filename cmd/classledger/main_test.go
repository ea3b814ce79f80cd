package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CLASSLEDGER_CONFIG", "")
	t.Setenv("CLASSLEDGER_STORAGE_DRIVER", "file")
	t.Setenv("CLASSLEDGER_STORAGE_FILE_PATH", filepath.Join(dir, "ledger.json"))
	t.Setenv("CLASSLEDGER_BLOB_DRIVER", "fs")
	t.Setenv("CLASSLEDGER_BLOB_FS_ROOT", filepath.Join(dir, "blobs"))
	t.Setenv("CLASSLEDGER_LOG_LEVEL", "error")
	return dir
}

func runCLI(t *testing.T, dir string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"-env-file", filepath.Join(dir, "none.env")}, args...)
	code := cli(context.Background(), full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func counts(t *testing.T, out string) map[string]int {
	t.Helper()
	var body struct {
		Counts map[string]int `json:"counts"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	return body.Counts
}

func TestUsageErrors(t *testing.T) {
	dir := testEnv(t)
	if code, _, _ := runCLI(t, dir); code != 2 {
		t.Fatalf("no command = %d", code)
	}
	if code, _, stderr := runCLI(t, dir, "frobnicate"); code != 2 || !strings.Contains(stderr, "unknown command") {
		t.Fatalf("unknown command = %d %q", code, stderr)
	}
	if code, _, _ := runCLI(t, dir, "import"); code != 2 {
		t.Fatalf("import without file = %d", code)
	}
	if code, _, _ := runCLI(t, dir, "clear"); code != 2 {
		t.Fatalf("clear without -yes = %d", code)
	}
}

func TestSeedExportClearImport(t *testing.T) {
	dir := testEnv(t)
	fixture := filepath.Join(dir, "seed.yaml")
	body := "groups:\n  - name: Algebra\n    students:\n      - fullName: Ada\n      - fullName: Brook\n"
	if err := os.WriteFile(fixture, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	if code, _, stderr := runCLI(t, dir, "seed", fixture); code != 0 {
		t.Fatalf("seed = %d: %s", code, stderr)
	}

	code, out, stderr := runCLI(t, dir, "stats")
	if code != 0 {
		t.Fatalf("stats = %d: %s", code, stderr)
	}
	if c := counts(t, out); c["students"] != 2 || c["studentGroups"] != 2 {
		t.Fatalf("counts after seed: %v", c)
	}

	backup := filepath.Join(dir, "backup.json")
	if code, _, stderr := runCLI(t, dir, "export", "-o", backup); code != 0 {
		t.Fatalf("export = %d: %s", code, stderr)
	}
	if code, _, stderr := runCLI(t, dir, "clear", "-yes"); code != 0 {
		t.Fatalf("clear = %d: %s", code, stderr)
	}
	_, out, _ = runCLI(t, dir, "stats")
	if c := counts(t, out); c["students"] != 0 {
		t.Fatalf("counts after clear: %v", c)
	}

	if code, _, stderr := runCLI(t, dir, "import", backup); code != 0 {
		t.Fatalf("import = %d: %s", code, stderr)
	}
	_, out, _ = runCLI(t, dir, "stats")
	if c := counts(t, out); c["students"] != 2 {
		t.Fatalf("counts after import: %v", c)
	}

	code, out, _ = runCLI(t, dir, "exports")
	if code != 0 || !strings.Contains(out, "exports/classledger-backup-") {
		t.Fatalf("exports = %d %s", code, out)
	}
}

func TestImportRejectsNonSnapshot(t *testing.T) {
	dir := testEnv(t)
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("[]"), 0o600); err != nil {
		t.Fatal(err)
	}
	code, _, stderr := runCLI(t, dir, "import", bad)
	if code != 1 || !strings.Contains(stderr, "not a snapshot") {
		t.Fatalf("import bad = %d %q", code, stderr)
	}
}

func TestTraceFileRecordsOperations(t *testing.T) {
	dir := testEnv(t)
	trace := filepath.Join(dir, "trace.jsonl")
	t.Setenv("CLASSLEDGER_TRACE_FILE", trace)

	fixture := filepath.Join(dir, "seed.yaml")
	if err := os.WriteFile(fixture, []byte("groups:\n  - name: Algebra\n    students:\n      - fullName: Ada\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if code, _, stderr := runCLI(t, dir, "seed", fixture); code != 0 {
		t.Fatalf("seed = %d: %s", code, stderr)
	}
	if code, _, stderr := runCLI(t, dir, "stats"); code != 0 {
		t.Fatalf("stats = %d: %s", code, stderr)
	}

	raw, err := os.ReadFile(trace)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	ops := map[string]int{}
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		var entry struct {
			Operation string `json:"operation"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		ops[entry.Operation]++
	}
	if ops["load"] != 2 {
		t.Fatalf("load spans = %d, want one per command: %v", ops["load"], ops)
	}
	if ops["dispatch.group.create"] == 0 {
		t.Fatalf("seed dispatches not traced: %v", ops)
	}
}
