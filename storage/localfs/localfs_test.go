package localfs

import (
	"testing"

	"beap.dev/beap/storage"
	"beap.dev/beap/storage/testkit"
)

func TestLocalfsCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		cas, err := NewCAS(t.TempDir())
		if err != nil {
			t.Fatalf("NewCAS: %v", err)
		}
		return cas
	})
}

func TestLocalfsLog_Conformance(t *testing.T) {
	testkit.RunLogConformance(t, func(t *testing.T) storage.AppendLog {
		log, err := NewLog(t.TempDir())
		if err != nil {
			t.Fatalf("NewLog: %v", err)
		}
		return log
	})
}

func TestLocalfsLog_ReopenContinuesSequence(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLog(dir)
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}
	if _, err := log.Append([]byte("one")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := log.Append([]byte("two")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	reopened, err := NewLog(dir)
	if err != nil {
		t.Fatalf("NewLog (reopen): %v", err)
	}
	seq, err := reopened.Append([]byte("three"))
	if err != nil {
		t.Fatalf("Append (reopen): %v", err)
	}
	if seq != 3 {
		t.Fatalf("expected seq 3 after reopen, got %d", seq)
	}
}
