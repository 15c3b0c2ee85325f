package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"beap.dev/beap/storage"
	"beap.dev/beap/storage/bundle"
)

const testSeedHex = "0707070707070707070707070707070707070707070707070707070707070707"

func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return out.String(), errOut.String(), code
}

func fieldAfter(t *testing.T, output, label string) string {
	t.Helper()
	for _, line := range strings.Split(output, "\n") {
		if rest, ok := strings.CutPrefix(line, label+": "); ok {
			return strings.TrimSpace(rest)
		}
	}
	t.Fatalf("no %q line in output:\n%s", label, output)
	return ""
}

func buildContainerFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "msg.beap")
	_, errText, code := runCLI(t,
		"build", "--mode", "pBEAP", "--seed-hex", testSeedHex,
		"--subject", "hello", "--body", "round trip", "--out", path)
	if code != 0 {
		t.Fatalf("build exit %d: %s", code, errText)
	}
	return path
}

func TestRun_ImportResolveExportRoundTrip(t *testing.T) {
	work := t.TempDir()
	storeDir := filepath.Join(work, "inbox")
	mirrorDir := filepath.Join(work, "mirror")
	container := buildContainerFile(t, work)

	out, errText, code := runCLI(t,
		"import", "--store-dir", storeDir, "--mirror-dir", mirrorDir, container)
	if code != 0 {
		t.Fatalf("import exit %d: %s", code, errText)
	}
	msgID := fieldAfter(t, out, "Message-ID")

	// The mirror holds its own copy of the raw payload.
	mirrored, err := os.ReadDir(mirrorDir)
	if err != nil || len(mirrored) == 0 {
		t.Fatalf("mirror dir is empty (err=%v)", err)
	}

	// Unverified items refuse to export.
	if _, errText, code = runCLI(t,
		"bundle", "export", "--store-dir", storeDir, msgID); code == 0 {
		t.Fatal("export of a pending item must fail")
	} else if !strings.Contains(errText, "bundleExport") {
		t.Fatalf("unexpected export error: %s", errText)
	}

	if _, errText, code = runCLI(t,
		"resolve", "--accept", "--store-dir", storeDir, msgID); code != 0 {
		t.Fatalf("resolve exit %d: %s", code, errText)
	}

	bundlePath := filepath.Join(work, "out.tar")
	if _, errText, code = runCLI(t,
		"bundle", "export", "--store-dir", storeDir, "--out", bundlePath, msgID); code != 0 {
		t.Fatalf("export exit %d: %s", code, errText)
	}

	data, err := os.ReadFile(bundlePath)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	dst := storage.NewMemoryCAS()
	if err := bundle.Import(bytes.NewReader(data), dst); err != nil {
		t.Fatalf("bundle import: %v", err)
	}
}

func TestRun_ResolveIsDurableAcrossInvocations(t *testing.T) {
	work := t.TempDir()
	storeDir := filepath.Join(work, "inbox")
	container := buildContainerFile(t, work)

	out, errText, code := runCLI(t, "import", "--store-dir", storeDir, container)
	if code != 0 {
		t.Fatalf("import exit %d: %s", code, errText)
	}
	msgID := fieldAfter(t, out, "Message-ID")

	if _, errText, code = runCLI(t,
		"resolve", "--reject", "--store-dir", storeDir, msgID); code != 0 {
		t.Fatalf("resolve exit %d: %s", code, errText)
	}

	// A fresh invocation replays the decision: the flip is refused.
	if _, errText, code = runCLI(t,
		"resolve", "--accept", "--store-dir", storeDir, msgID); code == 0 {
		t.Fatal("terminal state flip must fail")
	} else if !strings.Contains(errText, "resolve:") {
		t.Fatalf("unexpected resolve error: %s", errText)
	}
}

func TestRun_ResolveFlagValidation(t *testing.T) {
	if _, _, code := runCLI(t, "resolve", "some-id"); code != 2 {
		t.Fatalf("missing decision flag: exit %d, want 2", code)
	}
	if _, _, code := runCLI(t, "resolve", "--accept", "--reject", "some-id"); code != 2 {
		t.Fatalf("conflicting decision flags: exit %d, want 2", code)
	}
}
