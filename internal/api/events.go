package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"gebr/internal/logging"
	"gebr/internal/notify"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventBatch        = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// handleEvents subscribes the websocket peer as a notification client.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	hostname := strings.TrimSpace(r.URL.Query().Get("hostname"))
	if hostname == "" {
		hostname = remoteHost(r)
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed",
			logging.Error(err),
			logging.Event("websocket_upgrade_failed"),
			logging.Hint("connect with a websocket client"),
			logging.Impact("client receives no events"),
		)
		return
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Time{})

	client, err := s.svc.Subscribe(r.Context(), hostname)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		return
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.svc.Unsubscribe(ctx, client.ID)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// The peer never sends data; reading detects its close frame.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Info("event stream opened",
		logging.String("client_id", client.ID),
		logging.String("hostname", hostname),
		logging.Event("event_stream_opened"),
	)
	err = pump(ctx, conn, client)
	s.logger.Info("event stream closed",
		logging.String("client_id", client.ID),
		logging.Event("event_stream_closed"),
		logging.Error(err),
	)
}

func pump(ctx context.Context, conn *websocket.Conn, client *notify.Client) error {
	for {
		msgs, err := client.Drain(ctx, eventBatch)
		if errors.Is(err, notify.ErrClientClosed) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "daemon shutting down"),
				time.Now().Add(time.Second))
			return nil
		}
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			if err := conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout)); err != nil {
				return err
			}
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}
		}
	}
}
