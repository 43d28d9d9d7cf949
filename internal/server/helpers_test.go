package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kartnet/pkg/protocol"
)

var errSendFailed = errors.New("send failed")

// fakeSession 记录房间发来的包
type fakeSession struct {
	mu       sync.Mutex
	playerID uint64
	roomID   string
	packets  [][]byte
	failSend bool
	closed   bool
	silent   bool
}

func (s *fakeSession) ID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerID
}

func (s *fakeSession) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

func (s *fakeSession) Bind(playerID uint64, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerID = playerID
	s.roomID = roomID
}

func (s *fakeSession) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSend {
		return errSendFailed
	}
	s.packets = append(s.packets, data)
	return nil
}

func (s *fakeSession) RTT() time.Duration { return 0 }

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSession) CloseWithoutNotify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.silent = true
}

// received 解析收到的全部包并清空记录
func (s *fakeSession) received(t *testing.T) []*protocol.Packet {
	t.Helper()
	s.mu.Lock()
	raw := s.packets
	s.packets = nil
	s.mu.Unlock()

	out := make([]*protocol.Packet, 0, len(raw))
	for _, data := range raw {
		pkt, err := protocol.UnmarshalPacket(data)
		require.NoError(t, err)
		out = append(out, pkt)
	}
	return out
}

func (s *fakeSession) isSilentlyClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed && s.silent
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
