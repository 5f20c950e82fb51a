package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aukilabs/pvsbake/bake"
	pwebsocket "github.com/aukilabs/pvsbake/websocket"
	"golang.org/x/net/websocket"
)

const defaultLogSummaryInterval = time.Minute

type ProgressOptions struct {
	Broadcaster *pwebsocket.Broadcaster

	// The interval between each heartbeat sent to the clients.
	HeartbeatInterval time.Duration

	// The duration between each log summary by connection.
	LogSummaryInterval time.Duration
}

// HandleProgress streams the bake progress to WebSocket clients until ctx is
// done.
func HandleProgress(ctx context.Context, opts ProgressOptions) http.Handler {
	if opts.LogSummaryInterval <= 0 {
		opts.LogSummaryInterval = defaultLogSummaryInterval
	}

	return websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var h pwebsocket.Handler = &pwebsocket.ProgressHandler{
				Broadcaster: opts.Broadcaster,
				Heartbeat:   opts.HeartbeatInterval,
			}
			h = pwebsocket.HandlerWithLogs(h, opts.LogSummaryInterval)
			h = pwebsocket.HandlerWithMetrics(h)
			defer h.Close()

			pwebsocket.Handle(ctx, conn, h)
		},
	}
}

// HandleProgressSnapshot responds with the last published progress. It
// responds with no content when no bake has started yet.
func HandleProgressSnapshot(b *pwebsocket.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := b.Last()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		writeJSON(w, http.StatusOK, progressSnapshot{
			Progress: p,
			Fraction: p.Fraction(),
		})
	}
}

type progressSnapshot struct {
	bake.Progress

	Fraction float64 `json:"fraction"`
}
