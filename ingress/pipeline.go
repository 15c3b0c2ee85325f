// Package ingress is the fail-closed import pipeline: raw inbound bytes are
// stored verbatim, recorded in an append-only event log, and surfaced as
// pending items that no one may process until a verifier accepts them.
package ingress

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"beap.dev/beap/policy"
	"beap.dev/beap/storage"
)

// EventType distinguishes the two kinds of audit record.
type EventType string

const (
	EventImport       EventType = "import"
	EventVerification EventType = "verification"
)

// IngressEvent is one append-only audit record. Events are never deleted;
// the log is the system of record and Replay rebuilds the item registry
// from it.
type IngressEvent struct {
	EventID   string    `json:"eventId"`
	Type      EventType `json:"type"`
	MessageID string    `json:"messageId"`
	Source    Source    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// RawRef addresses the verbatim payload in the CAS. Import events only.
	RawRef string `json:"rawRef,omitempty"`

	// Outcome of the import attempt. Import events only.
	Outcome Outcome `json:"outcome,omitempty"`

	// Item snapshots the admitted item. Import events only; rejected and
	// dropped imports keep nothing.
	Item *InboxImportItem `json:"item,omitempty"`

	// State is the verifier's terminal answer. Verification events only.
	State VerificationState `json:"state,omitempty"`
}

// InboxImportItem is the user-visible projection of one import. It
// references exactly one event/payload pair via RawRef.
type InboxImportItem struct {
	MessageID    string            `json:"messageId"`
	EventID      string            `json:"eventId"`
	Source       Source            `json:"source"`
	Format       FormatHint        `json:"format"`
	IdentityHint string            `json:"identityHint"`
	RawRef       string            `json:"rawRef"`
	Size         int64             `json:"size"`
	ReceivedAt   time.Time         `json:"receivedAt"`
	State        VerificationState `json:"verificationStatus"`
	Quarantined  bool              `json:"quarantined,omitempty"`
	Queued       bool              `json:"queued,omitempty"`
}

// Outcome is the policy-declared result of one import attempt.
type Outcome string

const (
	OutcomeImported    Outcome = "imported"
	OutcomeQueued      Outcome = "queued"
	OutcomeQuarantined Outcome = "quarantined"
	OutcomeRejected    Outcome = "rejected"
	OutcomeDropped     Outcome = "dropped"
)

// ImportOptions carries per-import caller context.
type ImportOptions struct {
	// SenderAddress is the transport-level sender, when the transport knows
	// one (e.g. the email From address). Used for rate limiting, allow/block
	// lists and the local identity hint. Never resolved remotely.
	SenderAddress string

	// Filename, when the bytes arrived as a file.
	Filename string
}

// ImportResult reports one ImportMessage call.
type ImportResult struct {
	Success   bool    `json:"success"`
	Outcome   Outcome `json:"outcome"`
	MessageID string  `json:"messageId,omitempty"`
	EventID   string  `json:"eventId,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Pipeline drives imports under one local policy. Payloads go to the CAS,
// events to the append-only log, items to an in-memory registry guarded by
// the verification state machine.
type Pipeline struct {
	policy  *policy.CanonicalPolicy
	cas     storage.CAS
	log     storage.AppendLog
	limiter *RateCounter

	mu    sync.RWMutex
	items map[string]*InboxImportItem

	now func() time.Time
}

// NewPipeline builds a pipeline over the given policy and storage. The
// policy pointer is captured; swap it by constructing a new pipeline.
func NewPipeline(p *policy.CanonicalPolicy, cas storage.CAS, log storage.AppendLog) *Pipeline {
	return &Pipeline{
		policy:  p,
		cas:     cas,
		log:     log,
		limiter: NewRateCounter(),
		items:   make(map[string]*InboxImportItem),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ImportMessage is the sole ingress entry point.
//
// It validates by format hint only, stores the raw bytes verbatim, appends
// an event, derives a local-only identity hint and creates a pending item.
// Nothing here parses or interprets content; that is the verifier's side of
// the boundary.
func (pl *Pipeline) ImportMessage(raw []byte, source Source, opts ImportOptions) ImportResult {
	ch, ok := pl.policy.Channels[string(source)]
	if !ok || !ch.Enabled {
		return ImportResult{Outcome: OutcomeRejected, Error: fmt.Sprintf("channel %q is not enabled", source)}
	}
	if opts.Filename != "" && !IsImportableAsMessage(opts.Filename) {
		return ImportResult{Outcome: OutcomeRejected, Error: fmt.Sprintf("%q is not importable as a message", opts.Filename)}
	}

	sender := strings.TrimSpace(opts.SenderAddress)
	if blockedSender(ch, sender) {
		return ImportResult{Outcome: OutcomeRejected, Error: "sender is not admitted on this channel"}
	}

	pre := pl.policy.PreVerification
	size := int64(len(raw))
	if size == 0 {
		return ImportResult{Outcome: OutcomeRejected, Error: "empty payload"}
	}

	oversize := (pre.MaxPayloadBytes > 0 && size > pre.MaxPayloadBytes) ||
		(ch.MaxPayloadBytes > 0 && size > ch.MaxPayloadBytes)
	if oversize {
		return pl.applyBehavior(pre.OnOversize, raw, source, opts, "payload exceeds size limit")
	}

	if !pl.limiter.Admit(rateKey(source, sender), pl.now(), ch.MaxPackagesPerSenderPerHour) {
		return pl.applyBehavior(pre.OnRateLimit, raw, source, opts, "sender exceeded hourly rate limit")
	}

	if pl.pendingCount() >= pre.MaxPendingItems && pre.MaxPendingItems > 0 {
		return pl.applyBehavior(pre.OnRateLimit, raw, source, opts, "pending item capacity reached")
	}

	format := DetectFormat(raw, source)
	if format == FormatUnknown {
		return pl.applyBehavior(pre.OnUnknownFormat, raw, source, opts, "unrecognized payload format")
	}

	return pl.admit(raw, source, opts, format, OutcomeImported, false, false)
}

// applyBehavior executes a policy-declared violation behavior. These are
// explicit outcomes, not error recovery: nothing is retried and nothing is
// silently coerced.
func (pl *Pipeline) applyBehavior(b policy.Behavior, raw []byte, source Source, opts ImportOptions, reason string) ImportResult {
	switch b {
	case policy.BehaviorQueue:
		format := DetectFormat(raw, source)
		return pl.admit(raw, source, opts, format, OutcomeQueued, false, true)
	case policy.BehaviorQuarantine:
		format := DetectFormat(raw, source)
		return pl.admit(raw, source, opts, format, OutcomeQuarantined, true, false)
	case policy.BehaviorDropSilent:
		// Deliberate black hole: the caller sees success and nothing is kept.
		return ImportResult{Success: true, Outcome: OutcomeDropped}
	default: // reject, including unset
		return ImportResult{Outcome: OutcomeRejected, Error: reason}
	}
}

// admit stores the payload, appends the event and registers the item.
func (pl *Pipeline) admit(raw []byte, source Source, opts ImportOptions, format FormatHint, outcome Outcome, quarantined, queued bool) ImportResult {
	id, err := pl.cas.Put(raw)
	if err != nil {
		return ImportResult{Outcome: OutcomeRejected, Error: fmt.Sprintf("store payload: %v", err)}
	}
	rawRef := id.String()

	ev := IngressEvent{
		EventID:   uuid.NewString(),
		Type:      EventImport,
		MessageID: uuid.NewString(),
		Source:    source,
		Timestamp: pl.now(),
		RawRef:    rawRef,
		Outcome:   outcome,
	}
	item := &InboxImportItem{
		MessageID:    ev.MessageID,
		EventID:      ev.EventID,
		Source:       source,
		Format:       format,
		IdentityHint: identityHint(source, opts.SenderAddress),
		RawRef:       rawRef,
		Size:         int64(len(raw)),
		ReceivedAt:   ev.Timestamp,
		State:        StatePending,
		Quarantined:  quarantined,
		Queued:       queued,
	}
	snapshot := *item
	ev.Item = &snapshot
	if err := appendEvent(pl.log, &ev); err != nil {
		return ImportResult{Outcome: OutcomeRejected, Error: fmt.Sprintf("append event: %v", err)}
	}

	pl.mu.Lock()
	pl.items[item.MessageID] = item
	pl.mu.Unlock()

	return ImportResult{Success: true, Outcome: outcome, MessageID: ev.MessageID, EventID: ev.EventID}
}

// identityHint is strictly local: a labeled sender address when the
// transport supplied one, "local" otherwise. Never a network lookup.
func identityHint(source Source, sender string) string {
	if source == SourceEmailBridge && sender != "" {
		return "email:" + sender
	}
	return "local"
}

func rateKey(source Source, sender string) string {
	if sender == "" {
		sender = "local"
	}
	return string(source) + "/" + sender
}

func blockedSender(ch policy.ChannelPolicy, sender string) bool {
	for _, b := range ch.BlockedSenders {
		if b == sender {
			return true
		}
	}
	if len(ch.AllowedSenders) == 0 {
		return false
	}
	for _, a := range ch.AllowedSenders {
		if a == sender {
			return false
		}
	}
	return true
}

func (pl *Pipeline) pendingCount() int64 {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	var n int64
	for _, item := range pl.items {
		if item.State == StatePending {
			n++
		}
	}
	return n
}

// Item returns a copy of the item for messageID.
func (pl *Pipeline) Item(messageID string) (InboxImportItem, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	item, ok := pl.items[messageID]
	if !ok {
		return InboxImportItem{}, false
	}
	return *item, true
}

// Items returns copies of all registered items.
func (pl *Pipeline) Items() []InboxImportItem {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	out := make([]InboxImportItem, 0, len(pl.items))
	for _, item := range pl.items {
		out = append(out, *item)
	}
	return out
}

// Payload returns the verbatim raw bytes for an item. Reading the stored
// bytes is not processing; the guard applies to derivations, not retrieval.
func (pl *Pipeline) Payload(messageID string) ([]byte, error) {
	item, ok := pl.Item(messageID)
	if !ok {
		return nil, newError(KindNotFound, "ING-ITM-001", fmt.Sprintf("no item %q", messageID))
	}
	return readPayload(pl.cas, item.RawRef)
}

// ResolveVerification records the verifier's terminal answer for an item.
// Re-resolving to the same state is idempotent; flipping a terminal state is
// a contract breach. The resolution is appended to the event log before the
// item changes, so a replayed pipeline lands in the same state.
func (pl *Pipeline) ResolveVerification(messageID string, to VerificationState) error {
	if to != StateAccepted && to != StateRejected {
		return newError(KindValidation, "ING-STM-001", fmt.Sprintf("%q is not a terminal verification state", to))
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	item, ok := pl.items[messageID]
	if !ok {
		return newError(KindNotFound, "ING-ITM-001", fmt.Sprintf("no item %q", messageID))
	}
	if item.State == to {
		return nil
	}
	if !item.State.canTransition(to) {
		return newError(KindContract, "ING-STM-002",
			fmt.Sprintf("verification state %q is terminal; cannot transition to %q", item.State, to))
	}
	ev := IngressEvent{
		EventID:   uuid.NewString(),
		Type:      EventVerification,
		MessageID: messageID,
		Timestamp: pl.now(),
		State:     to,
	}
	if err := appendEvent(pl.log, &ev); err != nil {
		return err
	}
	item.State = to
	return nil
}

// Replay rebuilds a pipeline from its event log: admitted items are restored
// from their import snapshots and verification resolutions are re-applied in
// append order. Rate counters start empty; replay restores the inbox, not
// the hour windows.
func Replay(p *policy.CanonicalPolicy, cas storage.CAS, log storage.AppendLog) (*Pipeline, error) {
	pl := NewPipeline(p, cas, log)
	events, err := DecodeEvents(log)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		switch ev.Type {
		case EventImport:
			if ev.Item == nil {
				continue
			}
			item := *ev.Item
			pl.items[item.MessageID] = &item
		case EventVerification:
			if item, ok := pl.items[ev.MessageID]; ok && item.State.canTransition(ev.State) {
				item.State = ev.State
			}
		}
	}
	return pl, nil
}

// EnsureProcessable is the pipeline-level premature-processing guard: it
// resolves the item and applies AssertProcessable to its current state.
func (pl *Pipeline) EnsureProcessable(messageID, operation string) error {
	item, ok := pl.Item(messageID)
	if !ok {
		return newError(KindNotFound, "ING-ITM-001", fmt.Sprintf("no item %q", messageID))
	}
	return AssertProcessable(item.State, operation)
}
