package websocket

import (
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pvsbake/bake"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	subscriptionSize = 16

	DefaultHeartbeat = time.Second * 5
)

// Broadcaster fans bake progress out to subscribers. Subscribers that fall
// behind only miss intermediate updates: the latest one is always kept.
type Broadcaster struct {
	mutex       sync.Mutex
	subscribers map[chan bake.Progress]struct{}
	last        *bake.Progress
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan bake.Progress]struct{}),
	}
}

// Subscribe returns a channel that receives the published progress, starting
// with the last one published. The returned function unsubscribes and closes
// the channel.
func (b *Broadcaster) Subscribe() (<-chan bake.Progress, func()) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	c := make(chan bake.Progress, subscriptionSize)
	if b.last != nil {
		c <- *b.last
	}
	b.subscribers[c] = struct{}{}

	var once sync.Once
	return c, func() {
		once.Do(func() {
			b.mutex.Lock()
			defer b.mutex.Unlock()

			delete(b.subscribers, c)
			close(c)
		})
	}
}

// Publish sends p to every subscriber. It has the signature of a progress
// callback.
func (b *Broadcaster) Publish(p bake.Progress) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.last = &p
	for c := range b.subscribers {
		select {
		case c <- p:
		default:
			// drop the oldest update to make room
			select {
			case <-c:
			default:
			}
			c <- p
		}
	}
}

// Last returns the last published progress.
func (b *Broadcaster) Last() (bake.Progress, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.last == nil {
		return bake.Progress{}, false
	}
	return *b.last, true
}

func (b *Broadcaster) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return len(b.subscribers)
}

// ProgressHandler is the Handler that streams the updates of a Broadcaster.
type ProgressHandler struct {
	Broadcaster *Broadcaster

	// The interval between each heartbeat sent to the client. Defaults to
	// DefaultHeartbeat.
	Heartbeat time.Duration

	conn        *websocket.Conn
	clientID    string
	updates     <-chan bake.Progress
	unsubscribe func()
}

func (h *ProgressHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn
	h.clientID = uuid.NewString()
	h.updates, h.unsubscribe = h.Broadcaster.Subscribe()
}

func (h *ProgressHandler) HandleDisconnect(err error) {
	h.Close()
}

func (h *ProgressHandler) Updates() <-chan bake.Progress {
	return h.updates
}

func (h *ProgressHandler) Sender() Sender {
	return func(msg Msg) (int, error) {
		b, err := json.Marshal(msg)
		if err != nil {
			return 0, errors.New("encoding message failed").
				WithTag("msg_type", msg.Type).
				Wrap(err)
		}

		if err := websocket.Message.Send(h.conn, string(b)); err != nil {
			return 0, err
		}
		return len(b), nil
	}
}

func (h *ProgressHandler) HeartbeatInterval() time.Duration {
	if h.Heartbeat <= 0 {
		return DefaultHeartbeat
	}
	return h.Heartbeat
}

func (h *ProgressHandler) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
}

func (h *ProgressHandler) GetClientID() string {
	return h.clientID
}
