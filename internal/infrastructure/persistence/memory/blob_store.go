package memory

import (
	"context"
	"sync"

	"arbiter-backend/internal/domain/dkg"
	"arbiter-backend/internal/errors"
)

// BlobStore is content-addressed in-process storage. The CID of a blob
// is the hex digest of its bytes, so identical content always lands on
// the same address.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewBlobStore creates an empty blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

func (s *BlobStore) Put(_ context.Context, data []byte) (string, error) {
	cid := dkg.HashPayload(data).String()

	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	s.blobs[cid] = copied
	return cid, nil
}

func (s *BlobStore) Get(_ context.Context, cid string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[cid]
	if !ok {
		return nil, errors.NotFound("BLOB_NOT_FOUND", "no blob stored under this cid").
			WithOperation("Get").WithResource(cid).Build()
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
