package progress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Minimal graphql-transport-ws style framing: connection_init/connection_ack,
// subscribe/next/complete and ping/pong. A subscribe payload names the
// instance whose events should be streamed.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Instance string `json:"instance"`
}

const (
	readTimeout  = 60 * time.Second
	pingInterval = 20 * time.Second
)

// Handler streams broker events to WebSocket clients.
func Handler(b Broker, log *logrus.Entry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Debug("websocket upgrade")
			return
		}
		defer func() { _ = conn.Close() }()
		serveConn(r.Context(), conn, b, log)
	})
}

func serveConn(ctx context.Context, conn *websocket.Conn, b Broker, log *logrus.Entry) {
	var mu sync.Mutex
	write := func(v wsMessage) error {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	type sub struct {
		instance string
		ch       chan Event
	}
	var subsMu sync.Mutex
	subs := map[string]sub{}
	var wg sync.WaitGroup
	defer func() {
		subsMu.Lock()
		for id, s := range subs {
			b.Unsubscribe(s.instance, s.ch)
			delete(subs, id)
		}
		subsMu.Unlock()
		wg.Wait()
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(readTimeout)) })

	stopPing := make(chan struct{})
	defer close(stopPing)

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(pingInterval)
				defer ticker.Stop()
				for {
					select {
					case <-stopPing:
						return
					case <-ctx.Done():
						return
					case <-ticker.C:
						if write(wsMessage{Type: "ping"}) != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl subscribePayload
			if err := json.Unmarshal(msg.Payload, &pl); err != nil || pl.Instance == "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"instance required"}`)})
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			subsMu.Lock()
			if _, dup := subs[msg.ID]; dup {
				subsMu.Unlock()
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"duplicate id"}`)})
				continue
			}
			ch, err := b.Subscribe(ctx, pl.Instance)
			if err != nil {
				subsMu.Unlock()
				log.WithError(err).WithField("instance", pl.Instance).Warn("subscribe failed")
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"subscribe failed"}`)})
				continue
			}
			subs[msg.ID] = sub{instance: pl.Instance, ch: ch}
			subsMu.Unlock()
			log.WithFields(logrus.Fields{"id": msg.ID, "instance": pl.Instance}).Debug("subscribed")

			wg.Add(1)
			go func(id string, c chan Event) {
				defer wg.Done()
				for evt := range c {
					payload, _ := json.Marshal(evt)
					if write(wsMessage{Type: "next", ID: id, Payload: payload}) != nil {
						return
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)
		case "complete":
			subsMu.Lock()
			if s, ok := subs[msg.ID]; ok {
				b.Unsubscribe(s.instance, s.ch)
				delete(subs, msg.ID)
			}
			subsMu.Unlock()
		}
	}
}

// ErrStopWatching may be returned by a Watch callback to end the stream
// without error.
var ErrStopWatching = errors.New("stop watching")

// Watch connects to a progress endpoint and calls fn for every event of
// instance until ctx ends or fn returns an error.
func Watch(ctx context.Context, url, instance string, fn func(Event) error) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		return err
	}
	pl, _ := json.Marshal(subscribePayload{Instance: instance})
	if err := conn.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		return err
	}
	for {
		var m wsMessage
		if err := conn.ReadJSON(&m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		switch m.Type {
		case "ping":
			if err := conn.WriteJSON(wsMessage{Type: "pong"}); err != nil {
				return err
			}
		case "error":
			return errors.New("progress: " + string(m.Payload))
		case "complete":
			return nil
		case "next":
			var evt Event
			if err := json.Unmarshal(m.Payload, &evt); err != nil {
				return err
			}
			if err := fn(evt); err != nil {
				if errors.Is(err, ErrStopWatching) {
					return nil
				}
				return err
			}
		}
	}
}
