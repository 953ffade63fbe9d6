// Package models provides the record and batch types shared by the
// extraction engine and the sink adapters.
package models

import (
	"time"
)

// Provenance field names injected into every committed record.
const (
	FieldOfficeID         = "_office_id"
	FieldExtractTimestamp = "_extract_timestamp"
)

// RecordMetadata carries structured provenance for a record. Data-level
// provenance (the _office_id and _extract_timestamp fields) is what lands
// in the warehouse; the metadata struct is for logging and sinks.
type RecordMetadata struct {
	// Source identifies the origin system
	Source string `json:"source,omitempty"`
	// Entity is the logical entity name (customer, appointment, ...)
	Entity string `json:"entity,omitempty"`
	// OfficeID is the tenant the record was extracted from
	OfficeID int `json:"office_id,omitempty"`
	// RunID identifies the extraction run
	RunID string `json:"run_id,omitempty"`
	// ExtractedAt is the shared run-wide extraction timestamp
	ExtractedAt time.Time `json:"extracted_at"`
}

// Record is the unit the extraction engine moves around. The payload is a
// schema-less mapping because entity shape varies per source entity and is
// not statically known to the engine.
type Record struct {
	// Data contains the record payload as returned by the source API
	Data map[string]interface{} `json:"data"`
	// Metadata contains provenance information
	Metadata RecordMetadata `json:"metadata"`
}

// NewRecord creates a record around an API payload.
func NewRecord(data map[string]interface{}) *Record {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &Record{Data: data}
}

// SetData sets a payload field.
func (r *Record) SetData(key string, value interface{}) {
	if r.Data == nil {
		r.Data = make(map[string]interface{})
	}
	r.Data[key] = value
}

// GetData returns a payload field.
func (r *Record) GetData(key string) (interface{}, bool) {
	v, ok := r.Data[key]
	return v, ok
}

// Tag stamps the record with tenant and run provenance, both in the payload
// (so it lands in the warehouse) and in the metadata struct.
func (r *Record) Tag(officeID int, entity, runID string, extractedAt time.Time) {
	r.SetData(FieldOfficeID, officeID)
	r.SetData(FieldExtractTimestamp, extractedAt.UTC().Format(time.RFC3339))
	r.Metadata.OfficeID = officeID
	r.Metadata.Entity = entity
	r.Metadata.RunID = runID
	r.Metadata.ExtractedAt = extractedAt
}

// Batch is the ordered sequence of records for one entity across all
// tenants in one run. It is created empty at run start, appended to per
// tenant, handed whole to the sink, then discarded.
type Batch struct {
	Records []*Record
}

// NewBatch creates an empty batch with the given capacity hint.
func NewBatch(capacity int) *Batch {
	return &Batch{Records: make([]*Record, 0, capacity)}
}

// Append adds records to the batch, preserving order.
func (b *Batch) Append(records ...*Record) {
	b.Records = append(b.Records, records...)
}

// Size returns the number of records in the batch.
func (b *Batch) Size() int {
	return len(b.Records)
}

// Empty reports whether the batch holds no records.
func (b *Batch) Empty() bool {
	return len(b.Records) == 0
}
