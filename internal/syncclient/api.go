package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/park285/chessroom/pkg/chessmsg"
	"github.com/valyala/fasthttp"
)

// API reads the room's HTTP surface.
type API struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type APIOption func(*API)

func WithTimeout(d time.Duration) APIOption { return func(a *API) { a.defaultTimeout = d } }

func WithRetry(n int) APIOption { return func(a *API) { a.retryMax = n } }

func NewAPI(baseURL string, opts ...APIOption) *API {
	a := &API{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *API) Health(ctx context.Context) error {
	body, err := a.get(ctx, "/healthz")
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(body)) != "ok" {
		return fmt.Errorf("unexpected health body %q", truncate(string(body), 64))
	}
	return nil
}

func (a *API) State(ctx context.Context) (*chessmsg.RoomState, error) {
	var st chessmsg.RoomState
	if err := a.getJSON(ctx, "/state", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (a *API) Results(ctx context.Context, limit int) ([]chessmsg.ResultRecord, error) {
	path := "/results"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []chessmsg.ResultRecord
	if err := a.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BoardPNG fetches the rendered board, flipped when view is "black".
func (a *API) BoardPNG(ctx context.Context, view string) ([]byte, error) {
	path := "/board.png"
	if view = strings.TrimSpace(view); view != "" {
		path += "?view=" + view
	}
	return a.get(ctx, path)
}

func (a *API) getJSON(ctx context.Context, path string, out any) error {
	body, err := a.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (a *API) get(ctx context.Context, path string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(a.baseURL + path)

	attempts := max(a.retryMax, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := a.http.DoDeadline(req, resp, a.deadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				// resp는 반환 시 풀로 돌아가므로 복사한다
				return append([]byte(nil), resp.Body()...), nil
			}
			err = fmt.Errorf("room api error: status=%d body=%s", status, truncate(string(resp.Body()), 256))
			if !shouldRetryStatus(status) {
				return nil, err
			}
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return nil, lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, fmt.Errorf("request failed: %w", lastErr)
}

func (a *API) deadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(a.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
