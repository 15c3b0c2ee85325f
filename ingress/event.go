package ingress

import (
	"encoding/json"

	"github.com/ipfs/go-cid"

	"beap.dev/beap/storage"
)

// appendEvent writes one audit record to the log as JSON.
func appendEvent(log storage.AppendLog, ev *IngressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return wrapError(KindInternal, "ING-EVT-001", "encode ingress event", err)
	}
	if _, err := log.Append(data); err != nil {
		return wrapError(KindInternal, "ING-EVT-002", "append ingress event", err)
	}
	return nil
}

// DecodeEvents parses the full audit trail back out of a log, append order
// preserved.
func DecodeEvents(log storage.AppendLog) ([]IngressEvent, error) {
	records, err := log.Entries()
	if err != nil {
		return nil, wrapError(KindInternal, "ING-EVT-003", "read event log", err)
	}
	out := make([]IngressEvent, 0, len(records))
	for _, rec := range records {
		var ev IngressEvent
		if err := json.Unmarshal(rec, &ev); err != nil {
			return nil, wrapError(KindInternal, "ING-EVT-004", "decode ingress event", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// readPayload fetches the verbatim raw bytes behind a rawRef.
func readPayload(cas storage.CAS, rawRef string) ([]byte, error) {
	id, err := cid.Decode(rawRef)
	if err != nil {
		return nil, wrapError(KindValidation, "ING-PAY-001", "malformed payload reference", err)
	}
	raw, err := cas.Get(id)
	if err != nil {
		return nil, wrapError(KindNotFound, "ING-PAY-002", "payload not in store", err)
	}
	return raw, nil
}
