package server

import "time"

// Session 房间看到的一条客户端连接
type Session interface {
	ID() uint64
	RoomID() string
	Bind(playerID uint64, roomID string)
	Send(data []byte) error
	RTT() time.Duration
	Close()
	CloseWithoutNotify()
}
