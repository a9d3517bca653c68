package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/lounge-server/internal/proto"
)

// inboundFrame mirrors proto.Outbound with raw data for decoding by event name.
type inboundFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	name := flag.String("name", "", "registered identity name")
	token := flag.String("token", "", "session token from /api/login, if the server requires one")
	flag.Parse()
	if *name == "" {
		return errors.New("-name is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.InboundTypeJoin, proto.JoinData{IdentityName: *name, Token: *token}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s\n", *addr, *name)
	fmt.Println("Type messages and press Enter to send. Owner commands: /ban, /unban, /mute, /unmute, /delete <name>; /grant, /revoke <name> <badge>. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame inboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			case websocket.StatusPolicyViolation:
				fmt.Println("disconnected by the server")
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if frame.Type == proto.OutboundTypeError && frame.Error != nil {
			fmt.Printf("! %s: %s\n", frame.Error.Kind, frame.Error.Detail)
			continue
		}
		printEvent(frame)
	}
}

func printEvent(frame inboundFrame) {
	switch frame.Event {
	case proto.EventNameMessage:
		var msg proto.ChatMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			log.Printf("unmarshal message: %v", err)
			return
		}
		printMessage(msg)
	case proto.EventNameHistory:
		var hist proto.EventHistory
		if err := json.Unmarshal(frame.Data, &hist); err != nil {
			log.Printf("unmarshal history: %v", err)
			return
		}
		for _, msg := range hist.Messages {
			printMessage(msg)
		}
	case proto.EventNamePresence:
		var pres proto.EventPresence
		if err := json.Unmarshal(frame.Data, &pres); err != nil {
			log.Printf("unmarshal presence: %v", err)
			return
		}
		names := make([]string, 0, len(pres.Entries))
		for _, e := range pres.Entries {
			names = append(names, e.IdentityName)
		}
		fmt.Printf("* online: %s\n", strings.Join(names, ", "))
	case proto.EventNameSession:
		var sess proto.EventSession
		if err := json.Unmarshal(frame.Data, &sess); err != nil {
			log.Printf("unmarshal session: %v", err)
			return
		}
		fmt.Printf("* joined as %s %v\n", sess.IdentityName, sess.Badges)
	case proto.EventNameBadgeUpdate:
		var upd proto.EventBadgeUpdate
		if err := json.Unmarshal(frame.Data, &upd); err != nil {
			log.Printf("unmarshal badgeUpdate: %v", err)
			return
		}
		fmt.Printf("* your badges: %v\n", upd.Badges)
	case proto.EventNameBanned:
		fmt.Println("* you have been banned")
	case proto.EventNameAccountDeleted:
		fmt.Println("* your account has been deleted")
	default:
		fmt.Printf("event=%s data=%s\n", frame.Event, frame.Data)
	}
}

func printMessage(msg proto.ChatMessage) {
	fmt.Printf("%s %s %v: %s\n", msg.Time, msg.Author, msg.Badges, msg.Text)
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			var err error
			if strings.HasPrefix(text, "/") {
				mod, parseErr := parseModeration(text)
				if parseErr != nil {
					fmt.Println(parseErr)
					continue
				}
				err = send(ctx, conn, proto.InboundTypeModerate, mod)
			} else {
				err = send(ctx, conn, proto.InboundTypeSend, proto.SendData{Text: text})
			}
			if err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}

// parseModeration turns "/grant bob vip" into a moderate request.
func parseModeration(line string) (proto.ModerateData, error) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) < 2 {
		return proto.ModerateData{}, errors.New("usage: /<action> <name> [badge]")
	}
	mod := proto.ModerateData{Action: fields[0], TargetName: fields[1]}
	switch mod.Action {
	case "grant", "revoke":
		if len(fields) != 3 {
			return proto.ModerateData{}, fmt.Errorf("usage: /%s <name> <badge>", mod.Action)
		}
		mod.Badge = fields[2]
	}
	return mod, nil
}
