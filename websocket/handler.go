package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pvsbake/bake"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize = 64

	MsgTypeProgress  = "progress"
	MsgTypeHeartbeat = "heartbeat"
)

// Msg is a message sent to a connected client.
type Msg struct {
	Type     string         `json:"type"`
	Time     time.Time      `json:"time"`
	Progress *bake.Progress `json:"progress,omitempty"`
}

// Sender sends a message to the client and returns the number of bytes
// written.
type Sender func(Msg) (int, error)

// Handler represents a progress streaming handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Returns the progress updates to forward to the client.
	Updates() <-chan bake.Progress

	// Creates the message sender used to write to the client.
	Sender() Sender

	// The interval between each heartbeat sent to the connected client.
	HeartbeatInterval() time.Duration

	// Closes the handler and releases its allocated resources.
	Close()

	GetClientID() string
}

// Handle forwards progress updates to the client until it disconnects or ctx
// is done.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	Handler Handler

	sendChan       chan Msg
	sender         Sender
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 4)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan Msg, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	heartbeatTicker := time.NewTicker(h.Handler.HeartbeatInterval())
	defer heartbeatTicker.Stop()

	updates := h.Handler.Updates()

loop:
	for {
		select {
		case <-ctx.Done():
			h.handleDisconnect(ctx.Err())
			break loop

		case <-heartbeatTicker.C:
			h.send(Msg{Type: MsgTypeHeartbeat})

		case p, ok := <-updates:
			if !ok {
				h.handleDisconnect(errors.New("progress updates closed"))
				break loop
			}
			h.send(Msg{
				Type:     MsgTypeProgress,
				Progress: &p,
			})

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			break loop
		}
	}

	// cancel context so go routines can cleanly exit
	cancel()
	wg.Wait()
}

func (h *handler) send(msg Msg) {
	msg.Time = time.Now()

	select {
	case h.sendChan <- msg:
	default:
		h.disconnect(errors.New("client is too slow").
			WithTag("msg_type", msg.Type))
	}
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

// startReceiving discards client messages. It returns when the connection
// is closed.
func (h *handler) startReceiving(ctx context.Context) {
	for ctx.Err() == nil {
		var discarded []byte
		if err := websocket.Message.Receive(h.Conn, &discarded); err != nil {
			h.disconnect(errors.New("receiving message failed").Wrap(err))
			return
		}
	}
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}
