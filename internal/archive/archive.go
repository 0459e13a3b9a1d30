// Package archive writes the raw source payloads of a scan run to blob storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/JakeFAU/sitescan/internal/opportunity"
)

// BlobStore persists opaque objects and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, data io.Reader) (string, error)
}

// Document is the archived form of one scan run.
type Document struct {
	RunID     string            `json:"run_id"`
	SourceID  string            `json:"source_id"`
	FetchedAt time.Time         `json:"fetched_at"`
	Items     []json.RawMessage `json:"items"`
}

// Archiver lays out archive documents under a fixed prefix.
type Archiver struct {
	store  BlobStore
	prefix string
}

// New returns an Archiver. prefix defaults to "raw".
func New(store BlobStore, prefix string) *Archiver {
	if prefix == "" {
		prefix = "raw"
	}
	return &Archiver{store: store, prefix: prefix}
}

// Path returns the object path of a run: <prefix>/<source>/<yyyy>/<mm>/<dd>/<run id>.json.
func (a *Archiver) Path(sourceID, runID string, at time.Time) string {
	return path.Join(a.prefix, sourceID, at.Format("2006"), at.Format("01"), at.Format("02"), runID+".json")
}

// Archive writes the raw payloads of the candidates that carry one. It returns
// an empty URI without writing when no candidate has a payload.
func (a *Archiver) Archive(
	ctx context.Context,
	run opportunity.ScanRun,
	batch []opportunity.Candidate,
	at time.Time,
) (string, error) {
	doc := Document{RunID: run.ID, SourceID: run.SourceID, FetchedAt: at}
	for _, c := range batch {
		if len(c.Raw) > 0 {
			doc.Items = append(doc.Items, c.Raw)
		}
	}
	if len(doc.Items) == 0 {
		return "", nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal archive: %w", err)
	}
	uri, err := a.store.PutObject(ctx, a.Path(run.SourceID, run.ID, at), "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put archive: %w", err)
	}
	return uri, nil
}
