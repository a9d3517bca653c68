package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/lounge-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	name := flag.String("name", "tester", "identity name")
	password := flag.String("password", "smoke-test-password", "password used to register or log in")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	token, err := authenticate(ctx, *base, *name, *password)
	if err != nil {
		return err
	}

	wsURL := strings.Replace(*base, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	mustSend := func(typ string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	}

	if err := mustSend(proto.InboundTypeJoin, proto.JoinData{IdentityName: *name, Token: token}); err != nil {
		return err
	}
	if err := mustSend(proto.InboundTypeSend, proto.SendData{Text: *text}); err != nil {
		return err
	}

	for {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s", outbound.Type)
		if outbound.Event != "" {
			fmt.Printf(" event=%s", outbound.Event)
		}
		if outbound.Error != nil {
			fmt.Printf(" error=%s (%s)\n", outbound.Error.Kind, outbound.Error.Detail)
			return errors.New("server rejected the smoke run")
		}
		fmt.Printf(" data=%s\n", outbound.Data)

		if outbound.Event == proto.EventNameMessage {
			var msg proto.ChatMessage
			if err := json.Unmarshal(outbound.Data, &msg); err == nil && msg.Author == *name && msg.Text == *text {
				fmt.Println("smoke test passed")
				return nil
			}
		}
	}
}

// authenticate registers name, falling back to login when it already exists.
func authenticate(ctx context.Context, base, name, password string) (string, error) {
	token, status, err := postAuth(ctx, base+"/api/register", map[string]string{
		"name":     name,
		"email":    name + "@smoke.test",
		"password": password,
	})
	if err != nil {
		return "", err
	}
	if status == http.StatusCreated {
		return token, nil
	}

	token, status, err = postAuth(ctx, base+"/api/login", map[string]string{"name": name, "password": password})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", status)
	}
	return token, nil
}

func postAuth(ctx context.Context, url string, body map[string]string) (string, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	var out struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out.Token, resp.StatusCode, nil
}
