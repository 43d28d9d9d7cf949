package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"kartnet/pkg/core"
)

// ========== 辅助构造方法 ==========

// NewJoinRequestPacket 构造加入请求消息包
func NewJoinRequestPacket(playerName, roomID, sessionToken string) *Packet {
	req := &JoinRequest{
		PlayerName:   playerName,
		RoomID:       roomID,
		SessionToken: sessionToken,
	}
	return &Packet{Type: MessageTypeJoinRequest, Payload: req.Marshal()}
}

// NewInputBatchPacket 构造输入批量消息包
func NewInputBatchPacket(inputs []core.InputPayload) *Packet {
	batch := &InputBatch{Inputs: inputs}
	return &Packet{Type: MessageTypeInputBatch, Payload: batch.Marshal()}
}

// NewPingPacket 构造心跳消息包
func NewPingPacket(clientTime int64) *Packet {
	ping := &Ping{ClientTime: clientTime}
	return &Packet{Type: MessageTypePing, Payload: ping.Marshal()}
}

// ========== 服务器消息构造 ==========

// NewJoinResponsePacket 构造加入响应消息包
func NewJoinResponsePacket(resp *JoinResponse) *Packet {
	return &Packet{Type: MessageTypeJoinResponse, Payload: resp.Marshal()}
}

// NewJoinErrorPacket 构造加入失败响应
func NewJoinErrorPacket(errorMessage string) *Packet {
	return NewJoinResponsePacket(&JoinResponse{ErrorMessage: errorMessage})
}

// NewStateUpdatePacket 构造权威状态消息包
func NewStateUpdatePacket(serverTick core.Tick, states []core.StatePayload) *Packet {
	update := &StateUpdate{ServerTick: serverTick, States: states}
	return &Packet{Type: MessageTypeStateUpdate, Payload: update.Marshal()}
}

// NewPongPacket 构造心跳响应消息包
func NewPongPacket(clientTime, serverTime int64, serverTick core.Tick) *Packet {
	pong := &Pong{ClientTime: clientTime, ServerTime: serverTime, ServerTick: serverTick}
	return &Packet{Type: MessageTypePong, Payload: pong.Marshal()}
}

// NewPlayerLeavePacket 构造玩家离开消息包
func NewPlayerLeavePacket(playerID uint64) *Packet {
	leave := &PlayerLeave{PlayerID: playerID}
	return &Packet{Type: MessageTypePlayerLeave, Payload: leave.Marshal()}
}

// ========== 序列化与反序列化 ==========

// MarshalPacket 将 Packet 对象转换为字节切片
// 载荷即使为空也要写出，接收方据此区分“空消息”和“缺字段”
func MarshalPacket(pkt *Packet) []byte {
	b := make([]byte, 0, len(pkt.Payload)+8)
	b = appendInt32(b, 1, int32(pkt.Type))
	return appendMessage(b, 2, pkt.Payload)
}

// UnmarshalPacket 将字节切片转换为 Packet 对象
func UnmarshalPacket(data []byte) (*Packet, error) {
	pkt := &Packet{}
	err := walk(data, schema{1: protowire.VarintType, 2: protowire.BytesType}, func(f field) {
		switch f.num {
		case 1:
			pkt.Type = MessageType(f.int32())
		case 2:
			pkt.Payload = f.data
		}
	})
	if err != nil {
		return nil, err
	}
	return pkt, nil
}

// EncodePacket 序列化并加上长度前缀，可直接写到连接上
func EncodePacket(pkt *Packet) ([]byte, error) {
	return AppendFrame(nil, MarshalPacket(pkt))
}

// ========== 消息解析辅助 ==========

type unmarshaler interface {
	Unmarshal(b []byte) error
}

func parse(pkt *Packet, want MessageType, msg unmarshaler) error {
	if pkt.Type != want {
		return fmt.Errorf("%w: 收到 %s，期望 %s", ErrUnexpectedType, pkt.Type, want)
	}
	return msg.Unmarshal(pkt.Payload)
}

// ParseJoinRequest 从 Packet 中解析 JoinRequest
func ParseJoinRequest(pkt *Packet) (*JoinRequest, error) {
	req := &JoinRequest{}
	if err := parse(pkt, MessageTypeJoinRequest, req); err != nil {
		return nil, err
	}
	return req, nil
}

// ParseJoinResponse 从 Packet 中解析 JoinResponse
func ParseJoinResponse(pkt *Packet) (*JoinResponse, error) {
	resp := &JoinResponse{}
	if err := parse(pkt, MessageTypeJoinResponse, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ParseInputBatch 从 Packet 中解析 InputBatch
func ParseInputBatch(pkt *Packet) (*InputBatch, error) {
	batch := &InputBatch{}
	if err := parse(pkt, MessageTypeInputBatch, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// ParseStateUpdate 从 Packet 中解析 StateUpdate
func ParseStateUpdate(pkt *Packet) (*StateUpdate, error) {
	update := &StateUpdate{}
	if err := parse(pkt, MessageTypeStateUpdate, update); err != nil {
		return nil, err
	}
	return update, nil
}

// ParsePing 从 Packet 中解析 Ping
func ParsePing(pkt *Packet) (*Ping, error) {
	ping := &Ping{}
	if err := parse(pkt, MessageTypePing, ping); err != nil {
		return nil, err
	}
	return ping, nil
}

// ParsePong 从 Packet 中解析 Pong
func ParsePong(pkt *Packet) (*Pong, error) {
	pong := &Pong{}
	if err := parse(pkt, MessageTypePong, pong); err != nil {
		return nil, err
	}
	return pong, nil
}

// ParsePlayerLeave 从 Packet 中解析 PlayerLeave
func ParsePlayerLeave(pkt *Packet) (*PlayerLeave, error) {
	leave := &PlayerLeave{}
	if err := parse(pkt, MessageTypePlayerLeave, leave); err != nil {
		return nil, err
	}
	return leave, nil
}
