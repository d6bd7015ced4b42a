package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-recall/core"
	"github.com/becomeliminal/nim-recall/logging"
)

const (
	wsMaxMessageBytes = 64 << 10
	wsWriteTimeout    = 10 * time.Second
	wsPongTimeout     = 60 * time.Second
	wsPingInterval    = wsPongTimeout * 9 / 10
)

// handleWebSocket serves /ws. Each client frame gets exactly one reply
// frame, in order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		logging.From(r.Context()).Info("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logger := logging.From(ctx).With("conn_id", uuid.NewString())
	ctx = logging.With(ctx, logger)
	logger.Info("websocket connected", "remote", r.RemoteAddr)

	conn.SetReadLimit(wsMaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	// Replies and pings share the connection; gorilla allows one writer.
	replies := make(chan core.WSReply)
	go s.wsWriter(ctx, cancel, conn, replies)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Info("websocket read failed", "error", err)
			}
			logger.Info("websocket disconnected")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))

		var reply core.WSReply
		var msg core.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Info("invalid websocket frame", "error", err, "bytes", len(data))
			reply = core.WSReply{Type: core.MessageError, Error: "invalid JSON message"}
		} else {
			reply = s.dispatch(ctx, msg)
		}
		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) wsWriter(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, replies <-chan core.WSReply) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteTimeout))
			return

		case reply := <-replies:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(reply); err != nil {
				logging.From(ctx).Info("websocket write failed", "error", err)
				_ = conn.Close()
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

var errUnknownType = errors.New("unknown message type")

func (s *Server) dispatch(ctx context.Context, msg core.WSMessage) core.WSReply {
	reply := core.WSReply{Type: core.MessageResult, ID: msg.ID}

	switch msg.Type {
	case core.MessageAdd:
		if err := s.store.AddMemory(ctx, msg.Text, msg.Emotion, msg.Timestamp); err != nil {
			return wsError(ctx, msg, err)
		}
		reply.OK = true

	case core.MessageAsk:
		if !s.allowAsk() {
			return core.WSReply{Type: core.MessageError, ID: msg.ID, Error: "rate limit exceeded"}
		}
		answer, err := s.ask(ctx, msg.AskInput)
		if err != nil {
			return wsError(ctx, msg, err)
		}
		resp := core.NewAskResponse(answer)
		reply.OK = true
		reply.Answer = resp.Answer
		reply.Context = resp.Context

	case core.MessageList:
		records, err := s.store.ListMemories(ctx)
		if err != nil {
			return wsError(ctx, msg, err)
		}
		reply.OK = true
		reply.Memories = core.NewMemories(records)

	default:
		logging.From(ctx).Info("unknown websocket message", "type", msg.Type)
		return core.WSReply{Type: core.MessageError, ID: msg.ID, Error: errUnknownType.Error() + ": " + msg.Type}
	}

	return reply
}

func wsError(ctx context.Context, msg core.WSMessage, err error) core.WSReply {
	logging.From(ctx).Info("websocket request failed", "type", msg.Type, "error", err)
	return core.WSReply{Type: core.MessageError, ID: msg.ID, Error: messageFor(err)}
}
