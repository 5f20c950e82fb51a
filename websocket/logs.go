package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const clientIDTag = "client_id"

func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		summary:            newSendSummary(),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	userAgent     string
	xForwardedFor string

	summaryInterval    time.Duration
	closeSummaryWorker func()
	summaryMutex       sync.Mutex
	summary            sendSummary
}

// sendSummary accumulates what was sent to a client between two summary
// logs.
type sendSummary struct {
	msgs  map[string]int
	bytes int
	last  time.Time
}

func newSendSummary() sendSummary {
	return sendSummary{
		msgs: make(map[string]int),
	}
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)

	if req := conn.Request(); req != nil {
		h.userAgent = req.UserAgent()
		h.xForwardedFor = req.Header.Get("X-Forwarded-For")
	}

	logs.WithTag(clientIDTag, h.GetClientID()).
		WithTag("user_agent", h.userAgent).
		WithTag("x_forwarded_for", h.xForwardedFor).
		Info("new progress client is connected")
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	logs.WithTag(clientIDTag, h.GetClientID()).
		WithTag("reason", err).
		Info("progress client disconnected")
}

func (h *handlerWithLogs) Sender() Sender {
	sender := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		n, err := sender(msg)
		if err != nil {
			logs.WithTag(clientIDTag, h.GetClientID()).
				WithTag("msg_type", msg.Type).
				Debug(errors.New("sending message failed").Wrap(err))
		} else {
			logs.WithTag(clientIDTag, h.GetClientID()).
				WithTag("msg_type", msg.Type).
				Debug("message sent")
			h.record(msg, n)
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) record(msg Msg, n int) {
	h.summaryMutex.Lock()
	defer h.summaryMutex.Unlock()

	h.summary.msgs[msg.Type]++
	h.summary.bytes += n
	h.summary.last = msg.Time
}

func (h *handlerWithLogs) logSummary() {
	h.summaryMutex.Lock()
	defer h.summaryMutex.Unlock()

	if len(h.summary.msgs) == 0 {
		return
	}

	entry := logs.
		WithTag(clientIDTag, h.GetClientID()).
		WithTag("time_interval", h.summaryInterval).
		WithTag("bytes_sent", h.summary.bytes).
		WithTag("last_sent_at", h.summary.last)

	for msgType, count := range h.summary.msgs {
		entry = entry.WithTag(msgType, count)
	}
	h.summary = newSendSummary()

	entry.Info("outbound message summary")
}
