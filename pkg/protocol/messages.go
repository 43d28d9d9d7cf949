package protocol

import (
	"google.golang.org/protobuf/encoding/protowire"

	"kartnet/pkg/core"
)

// MessageType 数据包类型
type MessageType int32

const (
	MessageTypeUnspecified MessageType = iota
	MessageTypeJoinRequest
	MessageTypeJoinResponse
	MessageTypeInputBatch
	MessageTypeStateUpdate
	MessageTypePing
	MessageTypePong
	MessageTypePlayerLeave
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeJoinRequest:
		return "join_request"
	case MessageTypeJoinResponse:
		return "join_response"
	case MessageTypeInputBatch:
		return "input_batch"
	case MessageTypeStateUpdate:
		return "state_update"
	case MessageTypePing:
		return "ping"
	case MessageTypePong:
		return "pong"
	case MessageTypePlayerLeave:
		return "player_leave"
	}
	return "unspecified"
}

// Packet 外层信封
type Packet struct {
	Type    MessageType
	Payload []byte
}

// JoinRequest 客户端请求加入房间，带 SessionToken 时视为重连
type JoinRequest struct {
	PlayerName   string
	RoomID       string
	SessionToken string
}

// JoinResponse 加入结果，成功时带上服务器当前 tick 供客户端对齐
type JoinResponse struct {
	Success      bool
	PlayerID     uint64
	ErrorMessage string
	TickRate     int32
	ServerTick   core.Tick
	SessionToken string
	RoomID       string
	Spawn        core.StatePayload
}

// InputBatch 最近若干个 tick 的输入，旧的会被服务器当作重复丢弃
type InputBatch struct {
	Inputs []core.InputPayload
}

// StateUpdate 一个服务器 tick 内产出的权威状态
type StateUpdate struct {
	ServerTick core.Tick
	States     []core.StatePayload
}

type Ping struct {
	ClientTime int64
}

type Pong struct {
	ClientTime int64
	ServerTime int64
	ServerTick core.Tick
}

type PlayerLeave struct {
	PlayerID uint64
}

// ========== 载荷编解码 ==========

var inputSchema = func() schema {
	s := schema{
		1: protowire.VarintType,
		2: protowire.VarintType,
		3: protowire.VarintType,
		4: protowire.Fixed32Type,
		5: protowire.Fixed32Type,
	}
	vec3Schema(s, 6)
	return s
}()

func appendInput(b []byte, in core.InputPayload) []byte {
	b = appendInt32(b, 1, int32(in.Tick))
	b = appendInt64(b, 2, in.CaptureTimestamp)
	b = appendVarint(b, 3, in.OwnerID)
	b = appendFloat(b, 4, in.Move[0])
	b = appendFloat(b, 5, in.Move[1])
	return appendVec3(b, 6, in.ObservedPosition)
}

func decodeInput(b []byte) (core.InputPayload, error) {
	var in core.InputPayload
	err := walk(b, inputSchema, func(f field) {
		switch f.num {
		case 1:
			in.Tick = core.Tick(f.int32())
		case 2:
			in.CaptureTimestamp = f.int64()
		case 3:
			in.OwnerID = f.u64
		case 4:
			in.Move[0] = f.float32()
		case 5:
			in.Move[1] = f.float32()
		default:
			setVec3(&in.ObservedPosition, 6, f)
		}
	})
	return in, err
}

var stateSchema = func() schema {
	s := schema{
		1:  protowire.VarintType,
		2:  protowire.VarintType,
		6:  protowire.Fixed32Type,
		16: protowire.Fixed32Type,
	}
	vec3Schema(s, 3)
	vec3Schema(s, 7)
	vec3Schema(s, 10)
	vec3Schema(s, 13)
	return s
}()

// 字段布局：1 tick，2 owner，3-5 位置，6-9 旋转 (w,x,y,z)，10-12 速度，13-15 角速度，16 往返
func appendState(b []byte, s core.StatePayload) []byte {
	b = appendInt32(b, 1, int32(s.Tick))
	b = appendVarint(b, 2, s.OwnerID)
	b = appendVec3(b, 3, s.Position)
	b = appendFloat(b, 6, s.Rotation.W)
	b = appendVec3(b, 7, s.Rotation.V)
	b = appendVec3(b, 10, s.Velocity)
	b = appendVec3(b, 13, s.AngularVelocity)
	return appendFloat(b, 16, s.RoundTripMs)
}

func decodeState(b []byte) (core.StatePayload, error) {
	var s core.StatePayload
	err := walk(b, stateSchema, func(f field) {
		switch f.num {
		case 1:
			s.Tick = core.Tick(f.int32())
		case 2:
			s.OwnerID = f.u64
		case 6:
			s.Rotation.W = f.float32()
		case 16:
			s.RoundTripMs = f.float32()
		default:
			switch {
			case setVec3(&s.Position, 3, f):
			case setVec3(&s.Rotation.V, 7, f):
			case setVec3(&s.Velocity, 10, f):
			case setVec3(&s.AngularVelocity, 13, f):
			}
		}
	})
	return s, err
}

// ========== 消息编解码 ==========

func (m *JoinRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.PlayerName)
	b = appendString(b, 2, m.RoomID)
	return appendString(b, 3, m.SessionToken)
}

func (m *JoinRequest) Unmarshal(b []byte) error {
	*m = JoinRequest{}
	return walk(b, schema{1: protowire.BytesType, 2: protowire.BytesType, 3: protowire.BytesType}, func(f field) {
		switch f.num {
		case 1:
			m.PlayerName = f.string()
		case 2:
			m.RoomID = f.string()
		case 3:
			m.SessionToken = f.string()
		}
	})
}

var joinResponseSchema = schema{
	1: protowire.VarintType,
	2: protowire.VarintType,
	3: protowire.BytesType,
	4: protowire.VarintType,
	5: protowire.VarintType,
	6: protowire.BytesType,
	7: protowire.BytesType,
	8: protowire.BytesType,
}

func (m *JoinResponse) Marshal() []byte {
	var b []byte
	b = appendBool(b, 1, m.Success)
	b = appendVarint(b, 2, m.PlayerID)
	b = appendString(b, 3, m.ErrorMessage)
	b = appendInt32(b, 4, m.TickRate)
	b = appendInt32(b, 5, int32(m.ServerTick))
	b = appendString(b, 6, m.SessionToken)
	b = appendString(b, 7, m.RoomID)
	if m.Success {
		b = appendMessage(b, 8, appendState(nil, m.Spawn))
	}
	return b
}

func (m *JoinResponse) Unmarshal(b []byte) error {
	*m = JoinResponse{}
	var spawnErr error
	err := walk(b, joinResponseSchema, func(f field) {
		switch f.num {
		case 1:
			m.Success = f.bool()
		case 2:
			m.PlayerID = f.u64
		case 3:
			m.ErrorMessage = f.string()
		case 4:
			m.TickRate = f.int32()
		case 5:
			m.ServerTick = core.Tick(f.int32())
		case 6:
			m.SessionToken = f.string()
		case 7:
			m.RoomID = f.string()
		case 8:
			m.Spawn, spawnErr = decodeState(f.data)
		}
	})
	if err != nil {
		return err
	}
	return spawnErr
}

func (m *InputBatch) Marshal() []byte {
	var b []byte
	for _, in := range m.Inputs {
		b = appendMessage(b, 1, appendInput(nil, in))
	}
	return b
}

func (m *InputBatch) Unmarshal(b []byte) error {
	*m = InputBatch{}
	var itemErr error
	err := walk(b, schema{1: protowire.BytesType}, func(f field) {
		in, err := decodeInput(f.data)
		if err != nil && itemErr == nil {
			itemErr = err
		}
		m.Inputs = append(m.Inputs, in)
	})
	if err != nil {
		return err
	}
	return itemErr
}

func (m *StateUpdate) Marshal() []byte {
	var b []byte
	b = appendInt32(b, 1, int32(m.ServerTick))
	for _, s := range m.States {
		b = appendMessage(b, 2, appendState(nil, s))
	}
	return b
}

func (m *StateUpdate) Unmarshal(b []byte) error {
	*m = StateUpdate{}
	var itemErr error
	err := walk(b, schema{1: protowire.VarintType, 2: protowire.BytesType}, func(f field) {
		switch f.num {
		case 1:
			m.ServerTick = core.Tick(f.int32())
		case 2:
			s, err := decodeState(f.data)
			if err != nil && itemErr == nil {
				itemErr = err
			}
			m.States = append(m.States, s)
		}
	})
	if err != nil {
		return err
	}
	return itemErr
}

func (m *Ping) Marshal() []byte {
	return appendInt64(nil, 1, m.ClientTime)
}

func (m *Ping) Unmarshal(b []byte) error {
	*m = Ping{}
	return walk(b, schema{1: protowire.VarintType}, func(f field) {
		m.ClientTime = f.int64()
	})
}

func (m *Pong) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.ClientTime)
	b = appendInt64(b, 2, m.ServerTime)
	return appendInt32(b, 3, int32(m.ServerTick))
}

func (m *Pong) Unmarshal(b []byte) error {
	*m = Pong{}
	return walk(b, schema{1: protowire.VarintType, 2: protowire.VarintType, 3: protowire.VarintType}, func(f field) {
		switch f.num {
		case 1:
			m.ClientTime = f.int64()
		case 2:
			m.ServerTime = f.int64()
		case 3:
			m.ServerTick = core.Tick(f.int32())
		}
	})
}

func (m *PlayerLeave) Marshal() []byte {
	return appendVarint(nil, 1, m.PlayerID)
}

func (m *PlayerLeave) Unmarshal(b []byte) error {
	*m = PlayerLeave{}
	return walk(b, schema{1: protowire.VarintType}, func(f field) {
		m.PlayerID = f.u64
	})
}
