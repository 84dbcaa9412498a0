package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/khanglvm/tetris/internal/listener"
	"go.uber.org/zap"
)

// wsMessage is a client frame. Frames that are not JSON are treated as a
// plain utterance.
type wsMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// wsReply is a server frame.
type wsReply struct {
	Type string `json:"type"`
	listener.Reply
	Error string `json:"error,omitempty"`
}

// Listen streams utterances over a websocket into a per-connection
// background listener and writes each reply back as it is produced.
func (h *Handler) Listen(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(zap.String("request_id", chiMiddleware.GetReqID(r.Context())))

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("failed to accept websocket", zap.Error(err))
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "listener stopped"); closeErr != nil {
			log.Debug("failed to close websocket", zap.Error(closeErr))
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var writeMu sync.Mutex
	send := func(v wsReply) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
			log.Debug("websocket write failed", zap.Error(err))
			cancel()
		}
	}

	l := listener.New(h.engine, listener.SinkFunc(func(rep listener.Reply) {
		send(wsReply{Type: "reply", Reply: rep})
	}), h.queueSize, log)
	defer l.Stop()

	log.Info("listen stream opened")
	h.readLoop(ctx, ws, l, send, log)
	log.Info("listen stream closed")
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, l *listener.Listener, send func(wsReply), log *zap.Logger) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				log.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			msg = wsMessage{Type: "utterance", Text: string(data)}
		}

		switch strings.ToLower(msg.Type) {
		case "", "utterance":
			if strings.TrimSpace(msg.Text) == "" {
				continue
			}
			if !l.Submit(msg.Text) {
				send(wsReply{Type: "dropped", Reply: listener.Reply{Input: msg.Text}, Error: "listener busy or paused"})
			}
		case "pause":
			l.Pause()
			send(wsReply{Type: "paused"})
		case "resume":
			l.Resume()
			send(wsReply{Type: "resumed"})
		case "ping":
			send(wsReply{Type: "pong"})
		case "stop":
			return
		default:
			send(wsReply{Type: "error", Error: "unknown message type " + msg.Type})
		}
	}
}
