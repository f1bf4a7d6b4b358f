package archive

import (
    "context"
    "database/sql"
    "fmt"
    "strings"
    "time"

    _ "github.com/lib/pq"
    "github.com/park285/chessroom/internal/domain"
)

// Repository stores finished matches.
type Repository interface {
    SaveResult(ctx context.Context, r domain.MatchResult) error
    Recent(ctx context.Context, limit int) ([]domain.MatchResult, error)
    Close() error
}

const schema = `CREATE TABLE IF NOT EXISTS room_results (
    match_id     TEXT PRIMARY KEY,
    white_name   TEXT NOT NULL DEFAULT '',
    black_name   TEXT NOT NULL DEFAULT '',
    result       TEXT NOT NULL,
    result_pgn   TEXT NOT NULL,
    method       TEXT NOT NULL,
    final_fen    TEXT NOT NULL,
    plies        INTEGER NOT NULL DEFAULT 0,
    started_at   TIMESTAMPTZ NOT NULL,
    ended_at     TIMESTAMPTZ NOT NULL,
    duration_ms  BIGINT NOT NULL DEFAULT 0
)`

// PostgresRepository persists results with lib/pq.
type PostgresRepository struct {
    db *sql.DB
}

func NewPostgres(databaseURL string) (*PostgresRepository, error) {
    if strings.TrimSpace(databaseURL) == "" {
        return nil, fmt.Errorf("DATABASE_URL is required")
    }
    db, err := sql.Open("postgres", databaseURL)
    if err != nil { return nil, fmt.Errorf("open postgres: %w", err) }
    db.SetMaxOpenConns(8)
    db.SetMaxIdleConns(4)
    db.SetConnMaxLifetime(30 * time.Minute)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := db.PingContext(ctx); err != nil {
        _ = db.Close()
        return nil, fmt.Errorf("ping postgres: %w", err)
    }
    if _, err := db.ExecContext(ctx, schema); err != nil {
        _ = db.Close()
        return nil, fmt.Errorf("ensure schema: %w", err)
    }
    return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
    if r == nil || r.db == nil { return nil }
    return r.db.Close()
}

// SaveResult upserts by match id; a reset game that is archived twice keeps the latest row.
func (r *PostgresRepository) SaveResult(ctx context.Context, m domain.MatchResult) error {
    if r == nil || r.db == nil { return nil }
    if strings.TrimSpace(m.MatchID) == "" { return ErrMissingMatchID }

    q := `INSERT INTO room_results (
        match_id, white_name, black_name, result, result_pgn, method,
        final_fen, plies, started_at, ended_at, duration_ms
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
      ON CONFLICT (match_id) DO UPDATE SET
        white_name=EXCLUDED.white_name,
        black_name=EXCLUDED.black_name,
        result=EXCLUDED.result,
        result_pgn=EXCLUDED.result_pgn,
        method=EXCLUDED.method,
        final_fen=EXCLUDED.final_fen,
        plies=EXCLUDED.plies,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

    _, err := r.db.ExecContext(ctx, q,
        m.MatchID,
        sanitizeName(m.WhiteName), sanitizeName(m.BlackName),
        m.Result, m.PGNResult(), strings.ToLower(strings.TrimSpace(m.Method)),
        m.FinalFEN, m.Plies,
        m.StartedAt, m.EndedAt, m.Duration().Milliseconds(),
    )
    return err
}

func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]domain.MatchResult, error) {
    if r == nil || r.db == nil { return nil, nil }
    limit = clampLimit(limit)
    rows, err := r.db.QueryContext(ctx, `SELECT match_id, white_name, black_name, result, method,
        final_fen, plies, started_at, ended_at
        FROM room_results ORDER BY ended_at DESC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()

    var out []domain.MatchResult
    for rows.Next() {
        var m domain.MatchResult
        if err := rows.Scan(&m.MatchID, &m.WhiteName, &m.BlackName, &m.Result, &m.Method,
            &m.FinalFEN, &m.Plies, &m.StartedAt, &m.EndedAt); err != nil {
            return nil, err
        }
        out = append(out, m)
    }
    return out, rows.Err()
}

type staticErr string
func (e staticErr) Error() string { return string(e) }

var ErrMissingMatchID = staticErr("match id is required")

const maxRecent = 100

func clampLimit(n int) int {
    if n <= 0 { return 20 }
    if n > maxRecent { return maxRecent }
    return n
}

func sanitizeName(s string) string {
    s = strings.ReplaceAll(s, "\\", " ")
    s = strings.ReplaceAll(s, "\"", "'")
    return strings.TrimSpace(s)
}
