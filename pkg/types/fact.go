package types

import (
	"fmt"
	"strings"
	"time"
)

// Fact is an atomic claim extracted from an episodic record. Facts are
// versioned, never deleted: when new knowledge supersedes a fact the old row
// is flipped to is_current=false and linked into the supersede chain.
//
// Invariant: for a given claim key (subject + relation family) at most one
// fact has IsCurrent=true at any instant. SupersedesID/SupersededByID form
// a singly linked, acyclic chain terminating at the current version.
type Fact struct {
	ID       string `json:"id"`        // Unique identifier (format: fact:<uuid>)
	RecordID string `json:"record_id"` // Episodic record this fact was extracted from

	Subject  string `json:"subject"`  // Subject entity (e.g. "Sarah")
	Relation string `json:"relation"` // Relation string (e.g. "works_at")
	Object   string `json:"object"`   // Object entity (e.g. "Meta")
	FactText string `json:"fact_text"`

	Confidence float64 `json:"confidence"` // Extraction confidence in [0,1]

	DocumentDate       time.Time  `json:"document_date"`        // Date of the source document
	EventDate          *time.Time `json:"event_date,omitempty"` // When the claimed event occurred, if known
	TemporalExpression string     `json:"temporal_expression,omitempty"`

	Embedding          []float32 `json:"embedding,omitempty"`
	EmbeddingModel     string    `json:"embedding_model,omitempty"`

	// Versioning
	IsCurrent      bool   `json:"is_current"`
	SupersedesID   string `json:"supersedes_id,omitempty"`    // Older version this fact replaced
	SupersededByID string `json:"superseded_by_id,omitempty"` // Newer version that replaced this fact

	// EvidenceCount is bumped when a near-duplicate restatement of this fact
	// is observed instead of inserting a new row.
	EvidenceCount int `json:"evidence_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// RelationFamily is the normalized relation group this fact was filed
	// under (e.g. works_at and employed_by share a family). Set by the
	// versioner when the fact is stored.
	RelationFamily string `json:"relation_family,omitempty"`
}

// ClaimKey returns the (subject, relation family) pair identifying the
// logical claim this fact answers. Subjects are compared case-insensitively.
func (f *Fact) ClaimKey() string {
	family := f.RelationFamily
	if family == "" {
		family = f.Relation
	}
	return NormalizeEntity(f.Subject) + "|" + NormalizeEntity(family)
}

// NormalizeEntity lowercases and trims an entity or relation string for
// claim-key comparison.
func NormalizeEntity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Validate checks structural invariants on a fact before storage.
func (f *Fact) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("fact ID is required")
	}
	if f.Subject == "" || f.Relation == "" {
		return fmt.Errorf("fact %s: subject and relation are required", f.ID)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("fact %s: confidence %.3f outside [0,1]", f.ID, f.Confidence)
	}
	if f.DocumentDate.IsZero() {
		return fmt.Errorf("fact %s: document date is required", f.ID)
	}
	return nil
}

// FactCandidate is what the extraction collaborator produces for a chunk of
// episodic text. Candidates become facts only after the versioner has
// resolved them against the existing claim key.
type FactCandidate struct {
	FactText           string    `json:"fact_text"`
	FactType           string    `json:"fact_type,omitempty"`
	Subject            string    `json:"subject,omitempty"`
	Relation           string    `json:"relation,omitempty"`
	Object             string    `json:"object,omitempty"`
	Confidence         float64   `json:"confidence"`
	DocumentDate       time.Time `json:"document_date"`
	EventDate          *time.Time `json:"event_date,omitempty"`
	TemporalExpression string    `json:"temporal_expression,omitempty"`
}

// EntityRelation is a directed edge between entities used for multi-hop
// traversal. Relations use validity-window supersession: at most one edge
// per (source, relation type) pair is current at any instant; replacing an
// edge closes the old row's validity window instead of linking pointers.
type EntityRelation struct {
	ID           string     `json:"id"`
	SourceEntity string     `json:"source_entity"`
	RelationType string     `json:"relation_type"`
	TargetEntity string     `json:"target_entity"`
	Confidence   float64    `json:"confidence"`
	ValidFrom    time.Time  `json:"valid_from"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
	IsCurrent    bool       `json:"is_current"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Validate checks structural invariants on a relation edge.
func (r *EntityRelation) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("relation ID is required")
	}
	if r.SourceEntity == "" || r.RelationType == "" || r.TargetEntity == "" {
		return fmt.Errorf("relation %s: source, type, and target are required", r.ID)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("relation %s: confidence %.3f outside [0,1]", r.ID, r.Confidence)
	}
	return nil
}
