package ingress

import (
	"io"

	"github.com/ipfs/go-cid"

	"beap.dev/beap/beap"
	"beap.dev/beap/storage/bundle"
)

// ExportBundle writes the listed items to w as a deterministic bundle:
// each item's verbatim bytes, plus the sealed capsule of any private
// package as its own object.
//
// Exporting is processing: every listed item must be accepted, and a
// pending or rejected item aborts the export with the premature-processing
// contract error before anything is written.
func (pl *Pipeline) ExportBundle(w io.Writer, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return newError(KindValidation, "ING-EXP-001", "no items to export")
	}

	var entries []bundle.Entry
	labels := make(map[string]cid.Cid, len(messageIDs))
	for _, msgID := range messageIDs {
		if err := pl.EnsureProcessable(msgID, "bundleExport"); err != nil {
			return err
		}
		item, _ := pl.Item(msgID)
		rawID, err := cid.Decode(item.RawRef)
		if err != nil {
			return wrapError(KindInternal, "ING-EXP-002", "malformed payload reference", err)
		}

		kind := bundle.KindRaw
		if item.Format == FormatPackageJSON {
			kind = bundle.KindPackage
		}
		entries = append(entries, bundle.Entry{ID: rawID, Kind: kind})
		labels[msgID] = rawID

		if kind == bundle.KindPackage {
			capID, sealed, err := pl.capsuleObject(item)
			if err != nil {
				return err
			}
			if sealed {
				entries = append(entries, bundle.Entry{ID: capID, Kind: bundle.KindCapsule})
				labels[msgID+"/capsule"] = capID
			}
		}
	}

	if err := bundle.Export(w, pl.cas, entries, bundle.ExportOptions{Labels: labels}); err != nil {
		return wrapError(KindInternal, "ING-EXP-003", "write bundle", err)
	}
	return nil
}

// capsuleObject stores the sealed capsule of a private package as its own
// content-addressed object and returns its CID. Only the container framing
// is parsed; the capsule itself stays opaque. Public packages carry no
// capsule and report sealed=false.
func (pl *Pipeline) capsuleObject(item InboxImportItem) (cid.Cid, bool, error) {
	raw, err := readPayload(pl.cas, item.RawRef)
	if err != nil {
		return cid.Undef, false, err
	}
	pkg, err := beap.DecodeContainer(raw)
	if err != nil {
		return cid.Undef, false, wrapError(KindValidation, "ING-EXP-004", "undecodable package container", err)
	}
	if pkg.Header.Encoding != beap.EncodingQBEAP {
		return cid.Undef, false, nil
	}
	id, err := pl.cas.Put(pkg.Payload)
	if err != nil {
		return cid.Undef, false, wrapError(KindInternal, "ING-EXP-005", "store capsule artefact", err)
	}
	return id, true, nil
}
