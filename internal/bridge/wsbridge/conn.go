package wsbridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/bridge"
	"github.com/srg/tracktag/internal/groutine"
	"github.com/srg/tracktag/internal/ringchan"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// replyQueueSize bounds replies waiting to be written. A client that
	// outpaces it stalls its own reads instead of losing replies.
	replyQueueSize = 16
)

// envelope is any message written to the client.
type envelope struct {
	Type  string        `json:"type"`
	Event *bridge.Event `json:"event,omitempty"`
	Reply *bridge.Reply `json:"reply,omitempty"`
}

// conn is one websocket session. Events go through a drop-oldest queue, so a
// slow client loses the oldest events rather than stalling the emitter.
// Replies have their own queue, are never dropped and are written first.
type conn struct {
	ws      *websocket.Conn
	pair    channelPair
	out     *ringchan.RingChannel[envelope]
	replies chan envelope
	logger  *logrus.Entry

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, pair channelPair, queueSize int, logger *logrus.Logger) *conn {
	return &conn{
		ws:      ws,
		pair:    pair,
		out:     ringchan.New[envelope](queueSize),
		replies: make(chan envelope, replyQueueSize),
		logger: logger.WithFields(logrus.Fields{
			"remote":  ws.RemoteAddr().String(),
			"channel": pair.methods.Name(),
		}),
	}
}

func (c *conn) close() {
	c.closeOnce.Do(c.out.Close)
}

func (c *conn) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := c.pair.events.Listen(bridge.EventHandler{
		OnEvent: func(ev bridge.Event) {
			if c.out.Send(envelope{Type: "event", Event: &ev}) {
				c.logger.WithField("seq", ev.Seq).Warn("Client too slow, dropped oldest message")
			}
		},
		OnDone: c.close,
	})
	defer sub.Cancel()

	c.logger.Info("Event stream opened")

	writerDone := make(chan struct{})
	groutine.Go(ctx, "wsbridge-writer", func(context.Context) {
		defer close(writerDone)
		c.writeLoop()
	})

	c.readLoop(ctx, writerDone)
	c.close()
	<-writerDone
	_ = c.ws.Close()

	m := c.out.GetMetrics()
	c.logger.WithFields(logrus.Fields{
		"written": m.Written,
		"dropped": m.Overwritten,
		"unsent":  c.out.Len(),
		"queue":   c.out.Cap(),
	}).Info("Event stream closed")
}

// reply queues a reply for the writer. It blocks while the reply queue is
// full and gives up only when the writer is gone.
func (c *conn) reply(r bridge.Reply, writerDone <-chan struct{}) bool {
	select {
	case c.replies <- envelope{Type: "reply", Reply: &r}:
		return true
	case <-writerDone:
		return false
	}
}

func (c *conn) readLoop(ctx context.Context, writerDone <-chan struct{}) {
	c.ws.SetReadLimit(maxBodyBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.WithError(err).Debug("Websocket read failed")
			}
			return
		}

		var call bridge.Call
		if err := json.Unmarshal(data, &call); err != nil {
			if !c.reply(bridge.Reply{
				Error: bridge.NewChannelError(bridge.CodeInvalidArguments, "malformed call envelope"),
			}, writerDone) {
				return
			}
			continue
		}

		if !c.reply(c.pair.methods.Dispatch(ctx, call), writerDone) {
			return
		}
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		// pending replies go out before any queued event
		select {
		case msg := <-c.replies:
			if !c.write(msg) {
				return
			}
			continue
		default:
		}

		select {
		case msg := <-c.replies:
			if !c.write(msg) {
				return
			}
		case msg, ok := <-c.out.C():
			if !ok {
				_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = c.ws.Close()
				return
			}
			if !c.write(msg) {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.ws.Close()
				return
			}
		}
	}
}

func (c *conn) write(msg envelope) bool {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(msg); err != nil {
		c.logger.WithError(err).Debug("Websocket write failed")
		// unblock the reader
		_ = c.ws.Close()
		return false
	}
	return true
}
