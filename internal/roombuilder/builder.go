package roombuilder

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "strings"

    "github.com/park285/chessroom/internal/archive"
    "github.com/park285/chessroom/internal/config"
    "github.com/park285/chessroom/internal/feed"
    "github.com/park285/chessroom/internal/obslog"
    "github.com/park285/chessroom/internal/relay"
    "github.com/park285/chessroom/internal/roomws"
    "github.com/park285/chessroom/internal/rules"
    "github.com/park285/chessroom/internal/seat"
    "github.com/park285/chessroom/internal/session"
    "go.uber.org/zap"
)

type Deps struct {
    Oracle   rules.Oracle
    Seats    *seat.Registry
    Relay    *relay.Relay
    Feed     *feed.RedisFeed // nil without REDIS_URL
    Repo     archive.Repository
    Recorder *archive.AsyncRecorder
    Session  *session.Session
    WS       *roomws.Server
    Handler  http.Handler
}

// New wires the room. Redis and Postgres are optional: without REDIS_URL there is no
// feed, and without DATABASE_URL results are kept in memory.
func New(ctx context.Context, cfg *config.AppConfig) (*Deps, error) {
    if cfg == nil {
        return nil, fmt.Errorf("nil config")
    }
    d := &Deps{Seats: seat.NewRegistry()}

    // Rules
    if strings.TrimSpace(cfg.StartFEN) != "" {
        o, err := rules.NewStandardFrom(cfg.StartFEN)
        if err != nil {
            return nil, fmt.Errorf("START_FEN: %w", err)
        }
        d.Oracle = o
    } else {
        d.Oracle = rules.NewStandard()
    }

    // Feed (Redis optional)
    var pub relay.Publisher
    if strings.TrimSpace(cfg.RedisURL) != "" {
        f, err := feed.Dial(ctx, cfg.RedisURL, feed.Options{Channel: cfg.FeedChannel})
        if err != nil {
            return nil, fmt.Errorf("init feed: %w", err)
        }
        d.Feed = f
        pub = f
    }
    d.Relay = relay.New(pub)

    // Archive (DB optional)
    if strings.TrimSpace(cfg.DatabaseURL) != "" {
        repo, err := archive.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            d.closeFeed()
            return nil, fmt.Errorf("init archive: %w", err)
        }
        d.Repo = repo
    } else {
        d.Repo = archive.NewMemory()
    }
    d.Recorder = archive.NewAsyncRecorder(d.Repo)

    sess, err := session.New(session.Options{
        Oracle:                  d.Oracle,
        Seats:                   d.Seats,
        Dispatcher:              d.Relay,
        Recorder:                d.Recorder,
        TrustDeclaredResignSeat: cfg.ResignTrustClientSeat,
    })
    if err != nil {
        _ = d.Close(ctx)
        return nil, err
    }
    d.Session = sess

    d.WS, err = roomws.NewServer(roomws.Options{
        Session:        sess,
        Relay:          d.Relay,
        AllowedOrigins: cfg.AllowedOrigins,
        SendQueueSize:  cfg.SendQueueSize,
        PingInterval:   cfg.PingInterval,
    })
    if err != nil {
        _ = d.Close(ctx)
        return nil, err
    }
    d.Handler = roomws.NewHandler(d.WS, d.Repo, cfg.ResultsLimit)

    obslog.L().Info("room_built",
        zap.Bool("feed", d.Feed != nil),
        zap.Bool("postgres", strings.TrimSpace(cfg.DatabaseURL) != ""),
        zap.String("start", string(d.Oracle.Start())),
    )
    return d, nil
}

// Close waits for pending archive writes, then releases Redis and the database.
func (d *Deps) Close(ctx context.Context) error {
    var errs []error
    if d.Recorder != nil {
        if err := d.Recorder.Wait(ctx); err != nil { errs = append(errs, fmt.Errorf("archive drain: %w", err)) }
    }
    if err := d.closeFeed(); err != nil { errs = append(errs, fmt.Errorf("close feed: %w", err)) }
    if d.Repo != nil {
        if err := d.Repo.Close(); err != nil { errs = append(errs, fmt.Errorf("close archive: %w", err)) }
    }
    return errors.Join(errs...)
}

func (d *Deps) closeFeed() error {
    if d.Feed == nil { return nil }
    return d.Feed.Close()
}
