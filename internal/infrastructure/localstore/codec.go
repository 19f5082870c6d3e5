package localstore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/golang/snappy"
)

// snapshotVersion is bumped when the document layout changes
const snapshotVersion = 1

// snappyMagic prefixes compressed snapshots so either form can be read back
// regardless of the current compression setting.
var snappyMagic = []byte("SNPY\x01")

// Compression selects how the snapshot is encoded in its slot
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionSnappy Compression = "snappy"
)

// Meta is bookkeeping stored next to the collections
type Meta struct {
	// SyncedOnce lists, per tenant, the collections that completed at least one
	// successful pull since install.
	SyncedOnce   map[string][]shared.Collection `json:"syncedOnce,omitempty"`
	ActiveTenant string                         `json:"activeTenant,omitempty"`
}

// Document is the whole persisted local state
type Document struct {
	Version     int                                   `json:"version"`
	Collections map[shared.Collection][]shared.Record `json:"collections"`
	Meta        Meta                                  `json:"meta"`
}

func newDocument() Document {
	return Document{
		Version:     snapshotVersion,
		Collections: map[shared.Collection][]shared.Record{},
	}
}

// Codec serializes documents for a slot
type Codec struct {
	Compression Compression
}

// Encode serializes doc, compressing it when configured
func (c Codec) Encode(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if c.Compression != CompressionSnappy {
		return data, nil
	}
	return append(append([]byte(nil), snappyMagic...), snappy.Encode(nil, data)...), nil
}

// Decode reads a document written by Encode with any compression setting.
// Empty input yields an empty document.
func (c Codec) Decode(data []byte) (Document, error) {
	doc := newDocument()
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if bytes.HasPrefix(data, snappyMagic) {
		raw, err := snappy.Decode(nil, data[len(snappyMagic):])
		if err != nil {
			return doc, fmt.Errorf("failed to decompress snapshot: %w", err)
		}
		data = raw
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return newDocument(), fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if doc.Collections == nil {
		doc.Collections = map[shared.Collection][]shared.Record{}
	}
	if doc.Version == 0 {
		doc.Version = snapshotVersion
	}
	return doc, nil
}
