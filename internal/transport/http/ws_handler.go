package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	stdhttp "net/http"
	"slices"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/vovakirdan/lounge-server/internal/core"
	"github.com/vovakirdan/lounge-server/internal/i18n"
	"github.com/vovakirdan/lounge-server/internal/proto"
	"github.com/vovakirdan/lounge-server/internal/utils"
)

const (
	writeTimeout = 10 * time.Second

	// oversizeFactor sets the hard frame limit as a multiple of MaxMessageBytes.
	// Frames between the two limits are discarded and answered with an error;
	// larger ones close the connection.
	oversizeFactor = 4
)

// WSOptions tune websocket connections.
type WSOptions struct {
	ClientBuffer    int
	MaxMessageBytes int64
	OriginPatterns  []string
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub  *core.Hub
	log  *zerolog.Logger
	opts WSOptions
}

// closeError ends a connection with a specific close status.
type closeError struct {
	status websocket.StatusCode
	reason string
}

func (e *closeError) Error() string {
	return e.reason
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, logger *zerolog.Logger, opts WSOptions) stdhttp.Handler {
	return &WSHandler{hub: hub, log: logger, opts: opts}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()
	lang := i18n.Match(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))

	acceptOpts := &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns}
	if len(h.opts.OriginPatterns) == 0 || slices.Contains(h.opts.OriginPatterns, "*") {
		acceptOpts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	conn, err := websocket.Accept(w, r, acceptOpts)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes * oversizeFactor)
	}

	client := core.NewClient(utils.NewID(), remoteHost(r), h.opts.ClientBuffer)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, lang)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, lang)
	}()

	err = <-errCh
	var ce *closeError
	if errors.As(err, &ce) {
		// Close before cancelling so the peer gets the close frame, not a reset.
		conn.Close(ce.status, ce.reason)
	}
	cancel() // stop the other goroutine
	<-errCh
	if ce != nil {
		return
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, lang language.Tag) error {
	for {
		typ, data, tooLarge, err := h.readMessage(ctx, conn)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		var cmd *core.Command
		var cmdErr *core.CoreError
		switch {
		case tooLarge:
			cmdErr = core.NewError(core.KindValidation, "message too large")
		case typ != websocket.MessageText || json.Unmarshal(data, &inbound) != nil:
			cmdErr = core.NewError(core.KindValidation, "invalid payload")
		default:
			cmd, cmdErr = inboundToCommand(inbound)
		}
		if cmdErr != nil {
			h.log.Debug().Str("client_id", client.ID).Str("kind", string(cmdErr.Kind)).Msg(cmdErr.Message)
			if err := h.write(ctx, conn, errorOutbound(cmdErr, lang)); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// readMessage reads one frame. Frames over MaxMessageBytes are drained and
// reported as tooLarge instead of failing the connection.
func (h *WSHandler) readMessage(ctx context.Context, conn *websocket.Conn) (websocket.MessageType, []byte, bool, error) {
	typ, r, err := conn.Reader(ctx)
	if err != nil {
		return 0, nil, false, err
	}
	if h.opts.MaxMessageBytes <= 0 {
		data, err := io.ReadAll(r)
		return typ, data, false, err
	}

	data, err := io.ReadAll(io.LimitReader(r, h.opts.MaxMessageBytes+1))
	if err != nil {
		return 0, nil, false, err
	}
	if int64(len(data)) > h.opts.MaxMessageBytes {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return 0, nil, false, err
		}
		return typ, nil, true, nil
	}
	return typ, data, false, nil
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, lang language.Tag) error {
	for {
		select {
		case event := <-client.Events:
			if event.Kind == core.EventClose {
				return &closeError{status: websocket.StatusPolicyViolation, reason: event.Reason}
			}
			if err := h.write(ctx, conn, outboundFromEvent(event, lang)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return &closeError{status: websocket.StatusGoingAway, reason: "connection dropped"}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, out proto.Outbound) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, out)
}

func remoteHost(r *stdhttp.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
