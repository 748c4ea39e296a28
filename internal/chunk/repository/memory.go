package repository

import (
	"context"
	"sync"
	"time"

	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/google/uuid"
)

type chunkKey struct {
	documentID string
	index      int
}

// MemoryRepo is the in-memory chunk store used by default and in tests.
// A single lock covers version allocation and the write, which gives the
// per-team ordering guarantee trivially.
type MemoryRepo struct {
	mu     sync.RWMutex
	chunks map[chunkKey]*models.Chunk
	seq    map[string]int64
	now    func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		chunks: make(map[chunkKey]*models.Chunk),
		seq:    make(map[string]int64),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryRepo) nextVersion(teamID string) int64 {
	m.seq[teamID]++
	return m.seq[teamID]
}

func (m *MemoryRepo) Upsert(ctx context.Context, teamID, documentID string, writes []Write) (*UpsertResult, error) {
	if err := validateWrites(writes); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range writes {
		if err := checkExpected(w, m.chunks[chunkKey{documentID, w.Index}]); err != nil {
			return nil, err
		}
	}

	v := m.nextVersion(teamID)
	now := m.now()
	res := &UpsertResult{Version: v, Chunks: make([]*models.Chunk, 0, len(writes))}
	for _, w := range writes {
		k := chunkKey{documentID, w.Index}
		c, ok := m.chunks[k]
		if !ok {
			c = &models.Chunk{
				ID:         uuid.NewString(),
				DocumentID: documentID,
				TeamID:     teamID,
				Index:      w.Index,
				CreatedAt:  now,
			}
			m.chunks[k] = c
		} else if c.BlobKey != "" && c.BlobKey != w.BlobKey {
			res.ReplacedBlobKeys = append(res.ReplacedBlobKeys, c.BlobKey)
		}
		c.Payload = append([]byte(nil), w.Payload...)
		c.BlobKey = w.BlobKey
		c.Version = v
		c.Deleted = false
		c.UpdatedAt = now
		res.Chunks = append(res.Chunks, cloneChunk(c))
	}
	return res, nil
}

func (m *MemoryRepo) MarkDeleted(ctx context.Context, teamID, documentID string, index int) (*Tombstone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[chunkKey{documentID, index}]
	if !ok || c.TeamID != teamID {
		return nil, ErrNotFound
	}
	if c.Deleted {
		return &Tombstone{Version: c.Version}, nil
	}
	ts := &Tombstone{Version: m.nextVersion(teamID), Count: 1}
	if c.BlobKey != "" {
		ts.BlobKeys = []string{c.BlobKey}
	}
	c.Version = ts.Version
	c.Deleted = true
	c.UpdatedAt = m.now()
	return ts, nil
}

func (m *MemoryRepo) MarkDocumentDeleted(ctx context.Context, teamID, documentID string) (*Tombstone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var live []*models.Chunk
	for k, c := range m.chunks {
		if k.documentID == documentID && c.TeamID == teamID && !c.Deleted {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		return &Tombstone{}, nil
	}
	ts := &Tombstone{Version: m.nextVersion(teamID), Count: len(live)}
	now := m.now()
	for _, c := range live {
		if c.BlobKey != "" {
			ts.BlobKeys = append(ts.BlobKeys, c.BlobKey)
		}
		c.Version = ts.Version
		c.Deleted = true
		c.UpdatedAt = now
	}
	return ts, nil
}

func (m *MemoryRepo) Get(ctx context.Context, documentID string, index int) (*models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chunks[chunkKey{documentID, index}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneChunk(c), nil
}

func (m *MemoryRepo) ListLive(ctx context.Context, documentID string) ([]*models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*models.Chunk{}
	for k, c := range m.chunks {
		if k.documentID == documentID && !c.Deleted {
			out = append(out, cloneChunk(c))
		}
	}
	sortByIndex(out)
	return out, nil
}

func (m *MemoryRepo) ListSinceDocument(ctx context.Context, documentID string, watermark int64) ([]*models.Chunk, error) {
	return m.listSince(func(c *models.Chunk) bool { return c.DocumentID == documentID }, watermark), nil
}

func (m *MemoryRepo) ListSinceTeam(ctx context.Context, teamID string, watermark int64) ([]*models.Chunk, error) {
	return m.listSince(func(c *models.Chunk) bool { return c.TeamID == teamID }, watermark), nil
}

func (m *MemoryRepo) listSince(match func(*models.Chunk) bool, watermark int64) []*models.Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*models.Chunk{}
	for _, c := range m.chunks {
		if match(c) && c.Version > watermark {
			out = append(out, cloneChunk(c))
		}
	}
	sortFeed(out)
	return out
}

func (m *MemoryRepo) LatestVersions(ctx context.Context, teamID string) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[string]int64{}
	for _, c := range m.chunks {
		if c.TeamID == teamID && c.Version > out[c.DocumentID] {
			out[c.DocumentID] = c.Version
		}
	}
	return out, nil
}

func (m *MemoryRepo) PurgeTeam(ctx context.Context, teamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, c := range m.chunks {
		if c.TeamID == teamID {
			delete(m.chunks, k)
		}
	}
	delete(m.seq, teamID)
	return nil
}
