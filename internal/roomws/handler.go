package roomws

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/park285/chessroom/internal/archive"
	"github.com/park285/chessroom/internal/domain"
	"github.com/park285/chessroom/internal/obslog"
	"github.com/park285/chessroom/internal/render"
	"github.com/park285/chessroom/pkg/chessmsg"
	"go.uber.org/zap"
)

// NewHandler mounts the websocket endpoint and the read-only HTTP surface.
// repo may be nil, in which case /results is always empty.
func NewHandler(ws *Server, repo archive.Repository, resultsLimit int) http.Handler {
	h := &httpHandler{ws: ws, repo: repo, limit: resultsLimit}
	mux := http.NewServeMux()
	mux.Handle("GET /ws", ws)
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /state", h.state)
	mux.HandleFunc("GET /board.png", h.board)
	mux.HandleFunc("GET /results", h.results)
	return mux
}

type httpHandler struct {
	ws    *Server
	repo  archive.Repository
	limit int
}

func (h *httpHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *httpHandler) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.session.Snapshot())
}

func (h *httpHandler) board(w http.ResponseWriter, r *http.Request) {
	snap := h.ws.session.Snapshot()
	opts := render.ForSeat(r.URL.Query().Get("view"))
	opts.Title = matchTitle(snap.White, snap.Black)
	if snap.Turn != "" {
		opts.Turn = snap.Turn + " to move"
	}
	img, err := render.PNG(r.Context(), snap.FEN, opts)
	if err != nil {
		obslog.L().Warn("http_board_render_error", zap.String("fen", snap.FEN), zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img)
}

func (h *httpHandler) results(w http.ResponseWriter, r *http.Request) {
	limit := h.limit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	out := []chessmsg.ResultRecord{}
	if h.repo != nil {
		rows, err := h.repo.Recent(r.Context(), limit)
		if err != nil {
			obslog.L().Warn("http_results_error", zap.Error(err))
			http.Error(w, "results unavailable", http.StatusServiceUnavailable)
			return
		}
		for _, m := range rows {
			out = append(out, toRecord(m))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func toRecord(m domain.MatchResult) chessmsg.ResultRecord {
	return chessmsg.ResultRecord{
		MatchID:   m.MatchID,
		White:     m.WhiteName,
		Black:     m.BlackName,
		Result:    m.Result,
		Method:    m.Method,
		FinalFEN:  m.FinalFEN,
		Plies:     m.Plies,
		StartedAt: m.StartedAt,
		EndedAt:   m.EndedAt,
	}
}

func matchTitle(white, black string) string {
	if white == "" {
		white = "(empty)"
	}
	if black == "" {
		black = "(empty)"
	}
	return white + " vs " + black
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obslog.L().Debug("http_write_error", zap.Error(err))
	}
}
