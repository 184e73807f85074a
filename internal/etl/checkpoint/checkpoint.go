// Package checkpoint persists candidate mappings produced by the builder.
// The stored records double as the resume checkpoint: a term whose key is
// already present has been processed.
package checkpoint

import (
	"context"

	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
)

// Columns is the artifact layout, in order.
var Columns = []string{"namaste_code", "namaste_system", "icd_code", "icd_title", "relationship"}

// Record is one discovered mapping.
type Record struct {
	NamasteCode   string `json:"namaste_code"`
	NamasteSystem string `json:"namaste_system"`
	ICDCode       string `json:"icd_code"`
	ICDTitle      string `json:"icd_title"`
	Relationship  string `json:"relationship"`
}

// Key identifies the source term a record was produced for.
func (r Record) Key() terminology.Key {
	return terminology.Key{Code: r.NamasteCode, System: terminology.CodeSystem(r.NamasteSystem)}
}

func (r Record) fields() []string {
	return []string{r.NamasteCode, r.NamasteSystem, r.ICDCode, r.ICDTitle, r.Relationship}
}

// Checkpoint records which terms have been processed.
type Checkpoint interface {
	Contains(key terminology.Key) bool
	Append(ctx context.Context, rec Record) error
}

// Artifact is a Checkpoint whose records can be read back for ingestion.
type Artifact interface {
	Checkpoint
	Records(ctx context.Context) ([]Record, error)
	Len() int
	Close() error
}
