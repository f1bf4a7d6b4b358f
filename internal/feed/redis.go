// Package feed mirrors global room events onto a Redis channel so dashboards and
// other processes can follow the game without holding a websocket.
package feed

import (
    "context"
    "crypto/tls"
    "fmt"
    "net/url"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/park285/chessroom/internal/obslog"
    "github.com/park285/chessroom/pkg/chessmsg"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
)

const (
    defaultBuffer  = 256
    publishTimeout = 2 * time.Second
    ttlLatest      = 24 * time.Hour
)

type Options struct {
    Channel string
    Buffer  int
}

// RedisFeed publishes frames from a single goroutine, preserving dispatch order.
// Publish never blocks; frames are dropped when the buffer is full.
type RedisFeed struct {
    rdb     *redis.Client
    channel string
    queue   chan item
    done    chan struct{}
    once    sync.Once
    mu      sync.RWMutex
    closed  bool
}

// Dial connects to REDIS_URL-style addresses (redis://[:pass@]host:port/db).
func Dial(ctx context.Context, rawURL string, opts Options) (*RedisFeed, error) {
    ro, err := ParseRedisURL(rawURL)
    if err != nil { return nil, fmt.Errorf("parse redis url: %w", err) }
    rdb := redis.NewClient(ro)
    pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
    defer cancel()
    if err := rdb.Ping(pctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, fmt.Errorf("ping redis: %w", err)
    }
    return New(rdb, opts), nil
}

func New(rdb *redis.Client, opts Options) *RedisFeed {
    if strings.TrimSpace(opts.Channel) == "" { opts.Channel = "chessroom:events" }
    if opts.Buffer <= 0 { opts.Buffer = defaultBuffer }
    f := &RedisFeed{
        rdb:     rdb,
        channel: opts.Channel,
        queue:   make(chan item, opts.Buffer),
        done:    make(chan struct{}),
    }
    go f.loop()
    return f
}

func (f *RedisFeed) Channel() string { return f.channel }

func (f *RedisFeed) keyLatest() string { return f.channel + ":latest" }

type item struct {
    typ   chessmsg.Type
    frame []byte
}

// Publish enqueues a frame for the channel. boardState frames also become the
// resync snapshot returned by Latest.
func (f *RedisFeed) Publish(typ chessmsg.Type, frame []byte) {
    f.mu.RLock()
    defer f.mu.RUnlock()
    if f.closed { return }
    select {
    case f.queue <- item{typ: typ, frame: frame}:
    default:
        obslog.L().Warn("feed_queue_full", zap.String("channel", f.channel))
    }
}

func (f *RedisFeed) loop() {
    defer close(f.done)
    for it := range f.queue {
        ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
        pipe := f.rdb.Pipeline()
        pipe.Publish(ctx, f.channel, it.frame)
        if it.typ == chessmsg.TypeBoardState {
            pipe.Set(ctx, f.keyLatest(), it.frame, ttlLatest)
        }
        if _, err := pipe.Exec(ctx); err != nil {
            obslog.L().Warn("feed_publish_error", zap.String("channel", f.channel), zap.Error(err))
        }
        cancel()
    }
}

// Latest returns the last boardState frame, or nil when none was published yet.
func (f *RedisFeed) Latest(ctx context.Context) ([]byte, error) {
    raw, err := f.rdb.Get(ctx, f.keyLatest()).Bytes()
    if err == redis.Nil { return nil, nil }
    if err != nil { return nil, err }
    return raw, nil
}

// Subscribe follows the channel until ctx is done. The returned channel is closed then.
func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan []byte, error) {
    return Subscribe(ctx, f.rdb, f.channel)
}

// Subscribe is usable without a RedisFeed, e.g. from roomcheck.
func Subscribe(ctx context.Context, rdb *redis.Client, channel string) (<-chan []byte, error) {
    sub := rdb.Subscribe(ctx, channel)
    if _, err := sub.Receive(ctx); err != nil {
        _ = sub.Close()
        return nil, fmt.Errorf("subscribe %s: %w", channel, err)
    }
    out := make(chan []byte, 16)
    go func() {
        defer close(out)
        defer sub.Close()
        msgs := sub.Channel()
        for {
            select {
            case <-ctx.Done():
                return
            case m, ok := <-msgs:
                if !ok { return }
                select {
                case out <- []byte(m.Payload):
                case <-ctx.Done():
                    return
                }
            }
        }
    }()
    return out, nil
}

// Close drains pending frames and closes the client.
func (f *RedisFeed) Close() error {
    var err error
    f.once.Do(func() {
        f.mu.Lock()
        f.closed = true
        close(f.queue)
        f.mu.Unlock()
        <-f.done
        err = f.rdb.Close()
    })
    return err
}

// ParseRedisURL accepts redis:// and rediss:// URLs. Port defaults to 6379, DB to 0.
func ParseRedisURL(raw string) (*redis.Options, error) {
    u, err := url.Parse(strings.TrimSpace(raw))
    if err != nil { return nil, err }
    if u.Scheme != "redis" && u.Scheme != "rediss" {
        return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
    }
    host := u.Hostname()
    if host == "" { return nil, fmt.Errorf("missing host") }
    portStr := u.Port()
    if portStr == "" { portStr = "6379" }
    port, err := strconv.Atoi(portStr)
    if err != nil { return nil, err }
    db := 0
    if p := strings.TrimPrefix(u.Path, "/"); p != "" {
        if n, err := strconv.Atoi(p); err == nil { db = n }
    }
    pass, _ := u.User.Password()
    ro := &redis.Options{Addr: fmt.Sprintf("%s:%d", host, port), Password: pass, DB: db}
    if u.Scheme == "rediss" {
        ro.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
    }
    return ro, nil
}
