package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/matthewbaird/accountdesk/internal/auth"
	"github.com/matthewbaird/accountdesk/internal/command"
	"github.com/matthewbaird/accountdesk/internal/desk"
	"github.com/matthewbaird/accountdesk/internal/logger"
)

// Desk is what the console needs from the desk.
type Desk interface {
	Handle(ctx context.Context, actor, conversation string, cmd command.Command) desk.Reply
	HandleText(ctx context.Context, actor, conversation, line string) desk.Reply
	Role(actor string) auth.Role
}

// Handler manages WebSocket connections for the chat console.
type Handler struct {
	desk    Desk
	log     *logger.Logger
	origins []string
}

// NewHandler creates a console handler. Browsers may connect from the
// server's own host and from hosts matching allowedOrigins (path.Match
// patterns such as "*.example.com"). Clients that send no Origin header
// are not browsers and are always accepted.
func NewHandler(d Desk, log *logger.Logger, allowedOrigins ...string) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{desk: d, log: log.With("component", "wire"), origins: allowedOrigins}
}

// Actor returns the caller identity from the X-Actor header or the actor
// query parameter. Neither is authenticated here; deployments put the
// console behind a proxy that sets X-Actor and strips client values.
func Actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return r.URL.Query().Get("actor")
}

// ServeHTTP upgrades to WebSocket and runs the message loop. Messages of
// one connection are handled in order.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor := Actor(r)
	role := h.desk.Role(actor)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()
	ctx := r.Context()

	if role == auth.RoleNone {
		h.sendError(ctx, conn, "", "forbidden", "not authorized")
		conn.Close(websocket.StatusPolicyViolation, "not authorized")
		return
	}

	conversation := r.URL.Query().Get("conversation")
	if conversation == "" {
		conversation = uuid.NewString()
	}
	log := h.log.With("conversation", conversation, "actor", actor)
	log.Debug("console connected", "role", role)

	h.send(ctx, conn, ServerMessage{
		Type: TypeSession,
		Data: SessionData{ConversationID: conversation, Role: string(role)},
	})

	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				log.Debug("console closed", "status", status)
			}
			return
		}

		switch msg.Type {
		case TypePing:
			h.send(ctx, conn, ServerMessage{Type: TypePong, RequestID: msg.ID})
			continue
		case TypeCommand, TypeText, TypeCallback:
		default:
			h.sendError(ctx, conn, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
			continue
		}

		var reply desk.Reply
		if msg.Type == TypeText {
			line, err := decodeText(msg)
			if err != nil {
				h.sendError(ctx, conn, msg.ID, "invalid_data", err.Error())
				continue
			}
			reply = h.desk.HandleText(ctx, actor, conversation, line)
		} else {
			cmd, err := decodeCommand(msg)
			if err != nil {
				h.sendError(ctx, conn, msg.ID, "invalid_data", err.Error())
				continue
			}
			reply = h.desk.Handle(ctx, actor, conversation, cmd)
		}
		h.send(ctx, conn, ServerMessage{Type: TypeReply, RequestID: msg.ID, Data: reply})
	}
}

// decodeText extracts a typed line. How it parses depends on the
// conversation, so the desk does that.
func decodeText(msg ClientMessage) (string, error) {
	var data TextData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return "", fmt.Errorf("invalid text data")
	}
	line := strings.TrimSpace(data.Line)
	if line == "" {
		return "", command.ErrEmpty
	}
	return line, nil
}

func decodeCommand(msg ClientMessage) (command.Command, error) {
	switch msg.Type {
	case TypeCallback:
		var data CallbackData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return command.Command{}, fmt.Errorf("invalid callback data")
		}
		return command.ParseCallback(data.Payload)
	}
	var cmd command.Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		return command.Command{}, fmt.Errorf("invalid command data")
	}
	if cmd.Verb == "" {
		return command.Command{}, command.ErrEmpty
	}
	return cmd, nil
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		h.log.Debug("write failed", "error", err)
	}
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, requestID, code, message string) {
	h.send(ctx, conn, ServerMessage{
		Type:      TypeError,
		RequestID: requestID,
		Data:      ErrorData{Code: code, Message: message},
	})
}
