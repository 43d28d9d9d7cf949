package server

import (
	"fmt"

	"kartnet/pkg/protocol"
)

// DecodePacket 解析服务器收到的数据包
func DecodePacket(data []byte) (*ServerEvent, error) {
	pkt, err := protocol.UnmarshalPacket(data)
	if err != nil {
		return nil, fmt.Errorf("解析包失败: %w", err)
	}

	switch pkt.Type {
	case protocol.MessageTypeJoinRequest:
		req, err := protocol.ParseJoinRequest(pkt)
		if err != nil {
			return nil, err
		}
		return &ServerEvent{
			Kind: EventJoin,
			Join: &JoinEvent{
				PlayerName:   req.PlayerName,
				RoomID:       req.RoomID,
				SessionToken: req.SessionToken,
			},
		}, nil

	case protocol.MessageTypeInputBatch:
		batch, err := protocol.ParseInputBatch(pkt)
		if err != nil {
			return nil, err
		}
		return &ServerEvent{
			Kind:  EventInput,
			Input: &InputEvent{Inputs: batch.Inputs},
		}, nil

	case protocol.MessageTypePing:
		ping, err := protocol.ParsePing(pkt)
		if err != nil {
			return nil, err
		}
		return &ServerEvent{
			Kind: EventPing,
			Ping: &PingEvent{ClientTime: ping.ClientTime},
		}, nil

	case protocol.MessageTypePong:
		pong, err := protocol.ParsePong(pkt)
		if err != nil {
			return nil, err
		}
		return &ServerEvent{
			Kind: EventPong,
			Pong: &PongEvent{ClientTime: pong.ClientTime, ServerTime: pong.ServerTime, ServerTick: pong.ServerTick},
		}, nil

	default:
		return &ServerEvent{Kind: EventUnknown, Type: pkt.Type.String()}, nil
	}
}

// encode 服务器发出的包统一在这里序列化
func encode(pkt *protocol.Packet) []byte {
	return protocol.MarshalPacket(pkt)
}
