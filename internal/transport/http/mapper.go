package http

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/language"

	"github.com/vovakirdan/lounge-server/internal/core"
	"github.com/vovakirdan/lounge-server/internal/i18n"
	"github.com/vovakirdan/lounge-server/internal/proto"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *core.CoreError) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var join proto.JoinData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, core.NewError(core.KindValidation, "invalid payload")
		}
		if strings.TrimSpace(join.IdentityName) == "" {
			return nil, core.NewError(core.KindValidation, "identity name is required")
		}
		return &core.Command{
			Kind:         core.CommandJoin,
			IdentityName: join.IdentityName,
			Token:        join.Token,
		}, nil
	case proto.InboundTypeSend:
		var send proto.SendData
		if err := json.Unmarshal(inbound.Data, &send); err != nil {
			return nil, core.NewError(core.KindValidation, "invalid payload")
		}
		return &core.Command{Kind: core.CommandSend, Text: send.Text}, nil
	case proto.InboundTypeModerate:
		var mod proto.ModerateData
		if err := json.Unmarshal(inbound.Data, &mod); err != nil {
			return nil, core.NewError(core.KindValidation, "invalid payload")
		}
		return &core.Command{
			Kind: core.CommandModerate,
			Action: core.Action{
				Kind:   core.ActionKind(mod.Action),
				Target: mod.TargetName,
				Badge:  mod.Badge,
			},
		}, nil
	default:
		return nil, core.NewError(core.KindValidation, "unknown message type")
	}
}

func outboundFromEvent(event *core.Event, lang language.Tag) proto.Outbound {
	switch event.Kind {
	case core.EventMessage:
		return eventOutbound(proto.EventNameMessage, chatMessage(event.Message))
	case core.EventHistory:
		messages := make([]proto.ChatMessage, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, chatMessage(msg))
		}
		return eventOutbound(proto.EventNameHistory, proto.EventHistory{Messages: messages})
	case core.EventPresence:
		return eventOutbound(proto.EventNamePresence, proto.EventPresence{Entries: presenceEntries(event.Presence)})
	case core.EventSession:
		return eventOutbound(proto.EventNameSession, proto.EventSession{
			IdentityName: event.IdentityName,
			Badges:       nonNil(event.Badges),
		})
	case core.EventBanned:
		return eventOutbound(proto.EventNameBanned, proto.Empty{})
	case core.EventAccountDeleted:
		return eventOutbound(proto.EventNameAccountDeleted, proto.Empty{})
	case core.EventBadgeUpdate:
		return eventOutbound(proto.EventNameBadgeUpdate, proto.EventBadgeUpdate{Badges: nonNil(event.Badges)})
	case core.EventError:
		if event.Error == nil {
			return errorOutbound(core.NewError(core.KindUnavailable, "internal error"), lang)
		}
		return errorOutbound(event.Error, lang)
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func eventOutbound(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

func errorOutbound(err *core.CoreError, lang language.Tag) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Kind: string(err.Kind), Detail: i18n.Translate(lang, err.Message)},
	}
}

func chatMessage(msg core.Message) proto.ChatMessage {
	return proto.ChatMessage{
		ID:        msg.ID,
		Author:    msg.Author,
		Text:      msg.Text,
		Time:      msg.Time,
		Badges:    nonNil(msg.Badges),
		Timestamp: msg.Timestamp(),
	}
}

func presenceEntries(entries []core.PresenceEntry) []proto.PresenceEntry {
	out := make([]proto.PresenceEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, proto.PresenceEntry{
			IdentityName: e.IdentityName,
			Badges:       nonNil(e.Badges),
			Address:      e.Address,
		})
	}
	return out
}

// nonNil keeps empty badge sets encoded as [] rather than null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
