// Command deskctl is a terminal client for the account desk chat console.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/fatih/color"

	"github.com/matthewbaird/accountdesk/internal/desk"
	"github.com/matthewbaird/accountdesk/internal/wire"
)

// envelope is a ServerMessage with its payload left raw.
type envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func main() {
	var (
		addr         = flag.String("url", "ws://localhost:8080/ws", "chat console websocket url")
		actor        = flag.String("actor", os.Getenv("DESK_ACTOR"), "actor id to act as")
		conversation = flag.String("conversation", "", "conversation id to resume")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *addr, *actor, *conversation); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "deskctl: %v\n", err)
		os.Exit(1)
	}
}

func dialURL(raw, actor, conversation string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	q := u.Query()
	if actor != "" {
		q.Set("actor", actor)
	}
	if conversation != "" {
		q.Set("conversation", conversation)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func run(ctx context.Context, raw, actor, conversation string) error {
	target, err := dialURL(raw, actor, conversation)
	if err != nil {
		return err
	}
	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", raw, err)
	}
	defer conn.CloseNow()

	var hello envelope
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		return fmt.Errorf("reading session: %w", err)
	}
	if hello.Type == wire.TypeError {
		return describeError(hello.Data)
	}
	var sess wire.SessionData
	if err := json.Unmarshal(hello.Data, &sess); err != nil {
		return fmt.Errorf("decoding session: %w", err)
	}
	dimColor.Printf("conversation %s as %s; type help for commands\n", sess.ConversationID, sess.Role)

	in := bufio.NewScanner(os.Stdin)
	for seq := 1; ; seq++ {
		promptColor.Print("> ")
		if !in.Scan() {
			conn.Close(websocket.StatusNormalClosure, "")
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return conn.Close(websocket.StatusNormalClosure, "")
		}

		data, _ := json.Marshal(wire.TextData{Line: line})
		msg := wire.ClientMessage{Type: wire.TypeText, ID: strconv.Itoa(seq), Data: data}
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			return fmt.Errorf("sending: %w", err)
		}

		var resp envelope
		if err := wsjson.Read(ctx, conn, &resp); err != nil {
			return fmt.Errorf("reading reply: %w", err)
		}
		switch resp.Type {
		case wire.TypeReply:
			var reply desk.Reply
			if err := json.Unmarshal(resp.Data, &reply); err != nil {
				return fmt.Errorf("decoding reply: %w", err)
			}
			render(os.Stdout, reply)
		case wire.TypeError:
			failColor.Println(describeError(resp.Data))
		}
	}
}

func describeError(raw json.RawMessage) error {
	var e wire.ErrorData
	if err := json.Unmarshal(raw, &e); err != nil {
		return errors.New("server error")
	}
	return fmt.Errorf("%s: %s", e.Code, e.Message)
}
