package http

import (
	"encoding/json"

	"github.com/vovakirdan/projectchat-server/internal/core"
	"github.com/vovakirdan/projectchat-server/internal/proto"
)

// inboundToCommand decodes a client frame. Field-level checks are left to
// the router so WebSocket and REST share one gate; only undecodable frames
// are rejected here.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *core.CoreError) {
	switch inbound.Type {
	case proto.InboundTypeFetchGroupHistory:
		var data proto.FetchGroupHistoryData
		if err := decodeData(inbound.Data, &data); err != nil {
			return nil, badPayload(err)
		}
		return &core.Command{
			Kind:     core.CommandFetchGroupHistory,
			GroupID:  data.GroupID,
			Limit:    data.Limit,
			BeforeID: data.BeforeID,
		}, nil
	case proto.InboundTypeFetchDirectHistory:
		var data proto.FetchDirectHistoryData
		if err := decodeData(inbound.Data, &data); err != nil {
			return nil, badPayload(err)
		}
		return &core.Command{
			Kind:     core.CommandFetchDirectHistory,
			PeerID:   data.PeerID,
			Limit:    data.Limit,
			BeforeID: data.BeforeID,
		}, nil
	case proto.InboundTypeSendGroup:
		var data proto.SendGroupData
		if err := decodeData(inbound.Data, &data); err != nil {
			return nil, badPayload(err)
		}
		return &core.Command{
			Kind:      core.CommandSendGroupMessage,
			GroupID:   data.GroupID,
			Body:      data.Body,
			ClientKey: data.ClientKey,
		}, nil
	case proto.InboundTypeSendDirect:
		var data proto.SendDirectData
		if err := decodeData(inbound.Data, &data); err != nil {
			return nil, badPayload(err)
		}
		return &core.Command{
			Kind:      core.CommandSendDirectMessage,
			PeerID:    data.RecipientID,
			Body:      data.Body,
			ClientKey: data.ClientKey,
		}, nil
	default:
		return nil, &core.CoreError{Code: core.ErrCodeInvalidMessage, Message: "unknown message type"}
	}
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func badPayload(err error) *core.CoreError {
	return &core.CoreError{Code: core.ErrCodeBadRequest, Message: "malformed payload", Err: err}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventGroupHistory:
		return proto.Outbound{
			Type: proto.OutboundTypeGroupHistory,
			Data: proto.GroupHistory{GroupID: event.GroupID, Messages: messagesToProto(event.Messages)},
		}
	case core.EventDirectHistory:
		return proto.Outbound{
			Type: proto.OutboundTypeDirectHistory,
			Data: proto.DirectHistory{PeerID: event.PeerID, Messages: messagesToProto(event.Messages)},
		}
	case core.EventGroupMessage:
		return proto.Outbound{Type: proto.OutboundTypeGroupMessage, Data: messageToProto(event.Message)}
	case core.EventDirectMessage:
		return proto.Outbound{Type: proto.OutboundTypeDirectMessage, Data: messageToProto(event.Message)}
	case core.EventAck:
		return proto.Outbound{Type: proto.OutboundTypeAck, Data: messageToProto(event.Message)}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type: proto.OutboundTypeError,
			Error: &proto.Error{
				Code:      event.Error.Code,
				Msg:       event.Error.Message,
				ClientKey: event.Error.ClientKey,
			},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown event"}}
	}
}

func messageToProto(m core.Message) proto.Message {
	return proto.Message{
		ID:          m.ID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		GroupID:     m.GroupID,
		RecipientID: m.RecipientID,
		Body:        m.Body,
		ClientKey:   m.ClientKey,
		TS:          m.CreatedAt.UnixMilli(),
	}
}

func messagesToProto(in []core.Message) []proto.Message {
	out := make([]proto.Message, 0, len(in))
	for _, m := range in {
		out = append(out, messageToProto(m))
	}
	return out
}
