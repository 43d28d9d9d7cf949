package server

import "kartnet/pkg/core"

type EventKind int

const (
	EventUnknown EventKind = iota
	EventJoin
	EventInput
	EventPing
	EventPong
)

type JoinEvent struct {
	PlayerName   string
	RoomID       string // 房间 ID，空字符串表示自动分配到默认房间
	SessionToken string // 非空表示断线重连
}

type InputEvent struct {
	PlayerID uint64
	RoomID   string
	Inputs   []core.InputPayload
}

type PingEvent struct {
	ClientTime int64
}

type PongEvent struct {
	ClientTime int64
	ServerTime int64
	ServerTick core.Tick
}

type ServerEvent struct {
	Kind  EventKind
	Type  string
	Join  *JoinEvent
	Input *InputEvent
	Ping  *PingEvent
	Pong  *PongEvent
}
