// Package evidence defines the auditable unit of work: a sealed bundle
// binding an agent's result to the collaboration thread that produced
// it. The package's content hash makes tampering detectable, and its
// digest is the data hash that verifier commitments bind to.
package evidence

import (
	"encoding/json"
	"time"

	"arbiter-backend/internal/domain/dkg"
	"arbiter-backend/internal/errors"
)

// SchemaVersion identifies the package layout for forward migration.
const SchemaVersion = "1.0"

// Package is one submission of completed work.
type Package struct {
	ID             string          `json:"id"`
	AgentID        string          `json:"agent_id"`
	StudioID       string          `json:"studio_id"`
	TaskType       string          `json:"task_type"`
	ThreadID       string          `json:"thread_id"`
	ThreadRoot     string          `json:"thread_root"`
	Prediction     json.RawMessage `json:"prediction,omitempty"`
	Justification  string          `json:"justification,omitempty"`
	SourceDataCIDs []string        `json:"source_data_cids,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	ContentHash    string          `json:"content_hash,omitempty"`
	SchemaVer      string          `json:"schema_version"`
}

// New constructs a sealed evidence package.
func New(id, agentID, studioID, taskType, threadID, threadRoot string, prediction json.RawMessage, justification string, sourceCIDs []string, at time.Time) (*Package, error) {
	p := &Package{
		ID:             id,
		AgentID:        agentID,
		StudioID:       studioID,
		TaskType:       taskType,
		ThreadID:       threadID,
		ThreadRoot:     threadRoot,
		Prediction:     prediction,
		Justification:  justification,
		SourceDataCIDs: sourceCIDs,
		Timestamp:      at.UTC(),
		SchemaVer:      SchemaVersion,
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := p.Seal(); err != nil {
		return nil, err
	}
	return p, nil
}

// Decode parses and validates a package fetched from the blob store.
func Decode(raw []byte) (*Package, error) {
	var p Package
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Input("EVIDENCE_UNDECODABLE", "evidence payload is not valid JSON").
			WithOperation("Decode").WithCause(err).Build()
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Package) validate() error {
	switch {
	case p.ID == "":
		return invalid("evidence id must not be empty")
	case p.AgentID == "":
		return invalid("evidence agent id must not be empty")
	case p.StudioID == "":
		return invalid("evidence studio id must not be empty")
	case p.ThreadID == "":
		return invalid("evidence thread id must not be empty")
	case p.Timestamp.IsZero():
		return invalid("evidence timestamp must be set")
	}
	return nil
}

func invalid(msg string) error {
	return errors.Input("EVIDENCE_INVALID", msg).WithOperation("validate").Build()
}

// Seal computes and stores the content hash over the canonical bytes
// with the hash field empty.
func (p *Package) Seal() error {
	h, err := p.contentDigest()
	if err != nil {
		return err
	}
	p.ContentHash = h.String()
	return nil
}

// VerifyIntegrity recomputes the content hash and compares it to the
// sealed one, ignoring hex case.
func (p *Package) VerifyIntegrity() bool {
	if p.ContentHash == "" {
		return false
	}
	h, err := p.contentDigest()
	if err != nil {
		return false
	}
	return dkg.EqualHex(h.String(), p.ContentHash)
}

// DataHash digests the full sealed package. Verifier commitments bind
// to this value, so it covers the content hash as well.
func (p *Package) DataHash() (dkg.Hash, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return dkg.ZeroHash, errors.Internal("EVIDENCE_ENCODING", "evidence package failed to encode").
			WithOperation("DataHash").WithCause(err).Build()
	}
	return dkg.HashPayload(raw), nil
}

func (p *Package) contentDigest() (dkg.Hash, error) {
	clone := *p
	clone.ContentHash = ""
	raw, err := json.Marshal(&clone)
	if err != nil {
		return dkg.ZeroHash, errors.Internal("EVIDENCE_ENCODING", "evidence package failed to encode").
			WithOperation("contentDigest").WithCause(err).Build()
	}
	return dkg.HashPayload(raw), nil
}
