package archive

import (
    "context"
    "sync"
    "time"

    "github.com/park285/chessroom/internal/domain"
    "github.com/park285/chessroom/internal/obslog"
    "go.uber.org/zap"
)

// saveTimeout bounds a single background save.
const saveTimeout = 5 * time.Second

// AsyncRecorder hands results to a Repository without blocking the caller.
type AsyncRecorder struct {
    repo Repository
    wg   sync.WaitGroup
}

func NewAsyncRecorder(repo Repository) *AsyncRecorder {
    return &AsyncRecorder{repo: repo}
}

// Record saves r in a goroutine; failures are logged only.
func (a *AsyncRecorder) Record(r domain.MatchResult) {
    if a == nil || a.repo == nil { return }
    a.wg.Add(1)
    go func() {
        defer a.wg.Done()
        ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
        defer cancel()
        if err := a.repo.SaveResult(ctx, r); err != nil {
            obslog.L().Error("room_result_persist_error", zap.String("match_id", r.MatchID), zap.String("result", r.Result), zap.Error(err))
            return
        }
        obslog.L().Info("room_result_persist", zap.String("match_id", r.MatchID), zap.String("result", r.Result), zap.String("method", r.Method))
    }()
}

// Wait blocks until in-flight saves finish or ctx ends.
func (a *AsyncRecorder) Wait(ctx context.Context) error {
    if a == nil { return nil }
    done := make(chan struct{})
    go func() { a.wg.Wait(); close(done) }()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-done:
        return nil
    }
}
