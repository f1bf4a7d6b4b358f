package archive

import (
    "context"
    "sort"
    "strings"
    "sync"

    "github.com/park285/chessroom/internal/domain"
)

// MemoryRepository is used when no DATABASE_URL is configured.
type MemoryRepository struct {
    mu      sync.RWMutex
    byMatch map[string]domain.MatchResult
}

func NewMemory() *MemoryRepository {
    return &MemoryRepository{byMatch: make(map[string]domain.MatchResult)}
}

func (m *MemoryRepository) SaveResult(ctx context.Context, r domain.MatchResult) error {
    if strings.TrimSpace(r.MatchID) == "" { return ErrMissingMatchID }
    r.WhiteName = sanitizeName(r.WhiteName)
    r.BlackName = sanitizeName(r.BlackName)
    m.mu.Lock()
    m.byMatch[r.MatchID] = r
    m.mu.Unlock()
    return nil
}

// Recent sorts by EndedAt desc, falling back to match id.
func (m *MemoryRepository) Recent(ctx context.Context, limit int) ([]domain.MatchResult, error) {
    m.mu.RLock()
    items := make([]domain.MatchResult, 0, len(m.byMatch))
    for _, r := range m.byMatch {
        items = append(items, r)
    }
    m.mu.RUnlock()
    sort.Slice(items, func(i, j int) bool {
        if !items[i].EndedAt.Equal(items[j].EndedAt) {
            return items[i].EndedAt.After(items[j].EndedAt)
        }
        return items[i].MatchID > items[j].MatchID
    })
    limit = clampLimit(limit)
    if len(items) > limit {
        items = items[:limit]
    }
    return items, nil
}

func (m *MemoryRepository) Close() error { return nil }
