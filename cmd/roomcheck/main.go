package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	appcfg "github.com/park285/chessroom/internal/config"
	"github.com/park285/chessroom/internal/feed"
	"github.com/park285/chessroom/internal/syncclient"
	"github.com/park285/chessroom/pkg/chessmsg"
	"github.com/redis/go-redis/v9"
)

// roomcheck probes a running room: HTTP endpoints, then optionally a websocket
// observer and the Redis feed for ROOMCHECK_WINDOW_SEC seconds.
func main() {
	_ = godotenv.Load()
	cfg, err := appcfg.LoadClient()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	api := syncclient.NewAPI(cfg.RoomURL, syncclient.WithTimeout(5*time.Second), syncclient.WithRetry(2))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := api.Health(ctx); err != nil {
		log.Fatalf("/healthz error: %v", err)
	}
	log.Printf("/healthz ok: %s", cfg.RoomURL)

	if st, err := api.State(ctx); err != nil {
		log.Printf("/state error: %v", err)
	} else {
		log.Printf("/state ok: match=%s status=%s turn=%s white=%q black=%q observers=%d", st.MatchID, st.Status, st.Turn, st.White, st.Black, st.Observers)
	}
	if rows, err := api.Results(ctx, 5); err != nil {
		log.Printf("/results error: %v", err)
	} else {
		log.Printf("/results ok: %d recent", len(rows))
	}

	window := 0
	if v := strings.TrimSpace(os.Getenv("ROOMCHECK_WINDOW_SEC")); v != "" {
		window, _ = strconv.Atoi(v)
	}
	if window <= 0 {
		log.Println("ROOMCHECK_WINDOW_SEC not set; skipping WS and feed check")
		return
	}
	wctx, wcancel := context.WithTimeout(context.Background(), time.Duration(window)*time.Second)
	defer wcancel()

	if cfg.RedisURL != "" {
		go watchFeed(wctx, cfg.RedisURL)
	}

	ws := syncclient.NewConn(cfg.WebSocketURL(), syncclient.WithReconnectAttempts(0))
	ws.OnStateChange(func(s syncclient.ConnState) {
		log.Printf("WS state: %s", s)
	})
	ws.OnMessage(func(env chessmsg.Envelope) {
		fmt.Printf("WS %s %s\n", env.Type, string(env.Payload))
	})
	if err := ws.Connect(wctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}
	// 관전자로만 붙는다. joinGame을 보내지 않으면 좌석을 차지하지 않음
	<-wctx.Done()

	cctx, ccancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer ccancel()
	_ = ws.Close(cctx)
}

func watchFeed(ctx context.Context, redisURL string) {
	ro, err := feed.ParseRedisURL(redisURL)
	if err != nil {
		log.Printf("feed: bad REDIS_URL: %v", err)
		return
	}
	rdb := redis.NewClient(ro)
	defer rdb.Close()

	channel := strings.TrimSpace(os.Getenv("FEED_CHANNEL"))
	if channel == "" {
		channel = "chessroom:events"
	}
	frames, err := feed.Subscribe(ctx, rdb, channel)
	if err != nil {
		log.Printf("feed: %v", err)
		return
	}
	log.Printf("feed: subscribed to %s", channel)
	for f := range frames {
		fmt.Printf("FEED %s\n", string(f))
	}
}
