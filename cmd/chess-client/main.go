package main

import (
    "bufio"
    "context"
    "fmt"
    "log"
    "os"
    "os/signal"
    "strconv"
    "strings"
    "sync"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    appcfg "github.com/park285/chessroom/internal/config"
    "github.com/park285/chessroom/internal/msgcat"
    "github.com/park285/chessroom/internal/obslog"
    "github.com/park285/chessroom/internal/render"
    "github.com/park285/chessroom/internal/syncclient"
    "github.com/park285/chessroom/pkg/chessmsg"
    "go.uber.org/zap"
)

// terminal implements the synchronizer's Renderer, Notifier and Prompter on stdio.
type terminal struct {
    mu    sync.Mutex
    input chan string
}

func (t *terminal) Render(fen string, opts render.Options) {
    out, err := render.Text(fen, opts)
    if err != nil {
        obslog.L().Warn("client_render_error", zap.Error(err))
        return
    }
    t.mu.Lock()
    defer t.mu.Unlock()
    fmt.Print("\n" + out)
}

func (t *terminal) Notify(text string, blocking bool) {
    t.mu.Lock()
    defer t.mu.Unlock()
    if blocking {
        fmt.Printf("\n*** %s ***\n", text)
        return
    }
    fmt.Printf("> %s\n", text)
}

// ChoosePromotion is called from the command loop, so it takes the next input line.
func (t *terminal) ChoosePromotion(prompt string) string {
    t.mu.Lock()
    fmt.Printf("%s ", prompt)
    t.mu.Unlock()
    line, ok := <-t.input
    if !ok {
        return "q"
    }
    return strings.TrimSpace(line)
}

func (t *terminal) readStdin() {
    defer close(t.input)
    sc := bufio.NewScanner(os.Stdin)
    for sc.Scan() {
        t.input <- sc.Text()
    }
}

func main() {
    _ = godotenv.Load()
    if err := obslog.InitFromEnv(); err != nil {
        log.Fatalf("logger init error: %v", err)
    }
    cfg, err := appcfg.LoadClient()
    if err != nil {
        log.Fatalf("config error: %v", err)
    }
    name := cfg.Name
    if len(os.Args) > 1 {
        name = strings.Join(os.Args[1:], " ")
    }

    cat, err := msgcat.New(cfg.MessagesDir)
    if err != nil {
        log.Fatalf("messages error: %v", err)
    }

    term := &terminal{input: make(chan string)}
    conn := syncclient.NewConn(cfg.WebSocketURL())
    client, err := syncclient.New(syncclient.Options{
        Sender:   conn,
        Renderer: term,
        Notifier: term,
        Prompter: term,
        Catalog:  cat,
    })
    if err != nil {
        log.Fatalf("client init error: %v", err)
    }
    api := syncclient.NewAPI(cfg.RoomURL, syncclient.WithTimeout(5*time.Second))

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    conn.OnMessage(client.Handle)
    conn.OnStateChange(func(s syncclient.ConnState) {
        obslog.L().Info("client_ws_state", zap.String("state", string(s)))
        if s == syncclient.StateConnected {
            // 재접속은 새 참가로 취급되므로 매번 joinGame을 보낸다
            go func() {
                if err := client.Join(ctx, name); err != nil {
                    obslog.L().Warn("client_join_error", zap.Error(err))
                }
            }()
        }
    })
    if err := conn.Connect(ctx); err != nil {
        log.Fatalf("connect %s: %v", cfg.WebSocketURL(), err)
    }
    defer func() {
        cctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
        defer cancel()
        _ = conn.Close(cctx)
    }()

    fmt.Println(helpText())
    go term.readStdin()
    for {
        select {
        case <-ctx.Done():
            return
        case line, ok := <-term.input:
            if !ok {
                return
            }
            if quit := runCommand(ctx, client, api, line); quit {
                return
            }
        }
    }
}

func runCommand(ctx context.Context, client *syncclient.Synchronizer, api *syncclient.API, line string) bool {
    fields := strings.Fields(strings.ToLower(line))
    if len(fields) == 0 {
        return false
    }
    var err error
    switch cmd, args := fields[0], fields[1:]; {
    case cmd == "quit" || cmd == "exit":
        return true
    case cmd == "help":
        fmt.Println(helpText())
    case cmd == "board":
        fen, opts := client.View()
        out, rerr := render.Text(fen, opts)
        if rerr == nil {
            fmt.Print(out)
        }
    case cmd == "click" && len(args) == 1:
        err = client.Click(ctx, args[0])
    case cmd == "move" && len(args) == 1 && len(args[0]) >= 4:
        err = client.Drag(ctx, args[0][:2], args[0][2:4])
    case cmd == "resign":
        err = client.Resign(ctx)
    case cmd == "draw":
        err = client.OfferDraw(ctx)
    case cmd == "accept":
        err = client.RespondDraw(ctx, true)
    case cmd == "decline":
        err = client.RespondDraw(ctx, false)
    case cmd == "state":
        var st *chessmsg.RoomState
        if st, err = api.State(ctx); err == nil {
            fmt.Printf("match=%s status=%s turn=%s white=%q black=%q observers=%d\n", st.MatchID, st.Status, st.Turn, st.White, st.Black, st.Observers)
        }
    case cmd == "results":
        limit := 10
        if len(args) == 1 {
            if n, perr := strconv.Atoi(args[0]); perr == nil {
                limit = n
            }
        }
        var rows []chessmsg.ResultRecord
        if rows, err = api.Results(ctx, limit); err == nil {
            for _, r := range rows {
                fmt.Printf("%s  %s vs %s  %s (%s, %d plies)\n", r.EndedAt.Format(time.DateTime), r.White, r.Black, r.Result, r.Method, r.Plies)
            }
        }
    case len(args) == 0 && looksLikeMove(cmd):
        err = client.Drag(ctx, cmd[:2], cmd[2:4])
    default:
        fmt.Println("unknown command; type help")
    }
    if err != nil {
        fmt.Printf("! %v\n", err)
    }
    return false
}

func looksLikeMove(s string) bool {
    if len(s) != 4 && len(s) != 5 {
        return false
    }
    return s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8' &&
        s[2] >= 'a' && s[2] <= 'h' && s[3] >= '1' && s[3] <= '8'
}

func helpText() string {
    return strings.Join([]string{
        "♞ chess room client",
        "  e2e4 | move e2e4   move (drag)",
        "  click e2           pick up / drop a piece",
        "  resign | draw | accept | decline",
        "  board | state | results [n] | quit",
    }, "\n")
}
