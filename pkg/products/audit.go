package products

import (
	"context"
	"encoding/json"

	"github.com/Mindburn-Labs/productledger/pkg/chain"
	"github.com/Mindburn-Labs/productledger/pkg/notify"
)

// AuditEntry is one pointer from the ledger's registry and what it resolved to.
// Exactly one of Record and Err is set.
type AuditEntry struct {
	URL    string
	Record *ArchivedEventRecord
	Err    error
	QRCode string // data: URL encoding URL
}

func (e AuditEntry) MarshalJSON() ([]byte, error) {
	type entryJSON struct {
		URL    string               `json:"url"`
		Record *ArchivedEventRecord `json:"record,omitempty"`
		Error  string               `json:"error,omitempty"`
		QRCode string               `json:"qrCode,omitempty"`
	}
	out := entryJSON{URL: e.URL, Record: e.Record, QRCode: e.QRCode}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return json.Marshal(out)
}

// AuditTrail lists a token's archived events in registration order.
type AuditTrail struct {
	TokenID TokenID      `json:"tokenId"`
	Entries []AuditEntry `json:"entries"`
}

// Records returns the entries that resolved.
func (t *AuditTrail) Records() []*ArchivedEventRecord {
	out := make([]*ArchivedEventRecord, 0, len(t.Entries))
	for _, e := range t.Entries {
		if e.Record != nil {
			out = append(out, e.Record)
		}
	}
	return out
}

// Complete reports whether every pointer resolved.
func (t *AuditTrail) Complete() bool {
	for _, e := range t.Entries {
		if e.Err != nil {
			return false
		}
	}
	return true
}

// GetAuditTrail fetches every archived record registered for id. Only reading the
// registry itself can fail the call; per-pointer failures are reported in the
// entries.
func (c *Coordinator) GetAuditTrail(ctx context.Context, id TokenID) (trail *AuditTrail, err error) {
	ctx, done := c.track(ctx, "getAuditTrail", []TokenID{id})
	defer func() { done(err) }()

	out, err := c.ledger.Read(ctx, chain.MethodGetTransactionCIDs, chain.U256(uint64(id)))
	if err != nil {
		return nil, err
	}
	urls, err := chain.OutStrings(out, 0)
	if err != nil {
		return nil, err
	}

	trail = &AuditTrail{TokenID: id, Entries: make([]AuditEntry, 0, len(urls))}
	for _, url := range urls {
		entry := AuditEntry{URL: url}
		if qr, err := notify.QRDataURL(url); err == nil {
			entry.QRCode = qr
		}

		raw, err := c.store.Fetch(ctx, url)
		if err == nil {
			entry.Record, err = ParseArchivedRecord(raw)
		}
		if err != nil {
			c.logger.WarnContext(ctx, "audit record unavailable", "token_id", uint64(id), "url", url, "error", err)
			entry.Err = err
		}
		trail.Entries = append(trail.Entries, entry)
	}
	return trail, nil
}
