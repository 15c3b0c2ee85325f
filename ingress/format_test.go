package ingress

import (
	"testing"
	"time"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		source Source
		want   FormatHint
	}{
		{"package json", `{"beapVersion":"1.0","type":"BEAP_PACKAGE","envelope":{}}`, SourceFileDrop, FormatPackageJSON},
		{"package json with whitespace", "{\n  \"type\" : \"BEAP_PACKAGE\"\n}", SourceFileDrop, FormatPackageJSON},
		{"insert marker", "pasted:\n--- BEGIN BEAP MESSAGE ---\nxyz", SourceMessengerPaste, FormatInsertText},
		{"email heuristic", "see the beap attachment", SourceEmailBridge, FormatEmailBEAP},
		{"email heuristic only for email", "see the beap attachment", SourceClipboard, FormatUnknown},
		{"json without signature", `{"foo":"bar"}`, SourceFileDrop, FormatUnknown},
		{"signature outside json", `type: BEAP_PACKAGE`, SourceFileDrop, FormatUnknown},
		{"noise", "binary \x00\x01 noise", SourceFileDrop, FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat([]byte(tt.raw), tt.source); got != tt.want {
				t.Fatalf("DetectFormat = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsImportableAsMessage(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"ok.beap", true},
		{"OK.BEAP", true},
		{"evil.qbeap", false},
		{"evil.QBEAP", false},
		{"note.txt", false},
		{"beap", false},
		{"", false},
		{"archive.beap.qbeap", false},
	}
	for _, tt := range tests {
		if got := IsImportableAsMessage(tt.filename); got != tt.want {
			t.Fatalf("IsImportableAsMessage(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}

func TestRateCounter_FixedWindow(t *testing.T) {
	rc := NewRateCounter()
	at := time.Date(2026, 8, 29, 14, 5, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if !rc.Admit("alice", at, 3) {
			t.Fatalf("admit %d should fit under the cap", i+1)
		}
	}
	if rc.Admit("alice", at.Add(50*time.Minute), 3) {
		t.Fatal("4th request in the same hour bucket must be refused")
	}
	// New hour bucket resets the count.
	if !rc.Admit("alice", at.Add(time.Hour), 3) {
		t.Fatal("new bucket must admit again")
	}
	// Senders are independent.
	if !rc.Admit("bob", at, 3) {
		t.Fatal("other senders are unaffected")
	}
}

func TestRateCounter_ZeroBudgetRefusesAll(t *testing.T) {
	rc := NewRateCounter()
	if rc.Admit("alice", time.Now(), 0) {
		t.Fatal("zero budget must refuse everything")
	}
}

func TestRateCounter_OrderIndependentWithinBucket(t *testing.T) {
	// Admission in a bucket depends only on the count, so any arrival order
	// admits exactly max requests.
	at := time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC)
	offsets := []time.Duration{40 * time.Minute, 5 * time.Minute, 59 * time.Minute, 0}

	rc := NewRateCounter()
	admitted := 0
	for _, off := range offsets {
		if rc.Admit("alice", at.Add(off), 2) {
			admitted++
		}
	}
	if admitted != 2 {
		t.Fatalf("admitted %d of 4, want exactly the cap", admitted)
	}
}
