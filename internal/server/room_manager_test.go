package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kartnet/pkg/protocol"
)

func newTestManager(t *testing.T, cfg RoomConfig) *RoomManager {
	t.Helper()
	if cfg.TickRate == 0 {
		cfg.TickRate = 60
	}
	m := NewRoomManager(context.Background(), cfg)
	require.NoError(t, m.Run())
	t.Cleanup(m.Shutdown)
	return m
}

func joinResponse(t *testing.T, s *fakeSession) *protocol.JoinResponse {
	t.Helper()
	pkts := s.received(t)
	require.NotEmpty(t, pkts)
	resp, err := protocol.ParseJoinResponse(pkts[0])
	require.NoError(t, err)
	return resp
}

func TestRoomManagerJoinDefaultRoom(t *testing.T) {
	m := newTestManager(t, RoomConfig{})

	s1, s2 := &fakeSession{}, &fakeSession{}
	require.NoError(t, m.Join(s1, JoinEvent{PlayerName: "a"}))
	require.NoError(t, m.Join(s2, JoinEvent{PlayerName: "b"}))

	assert.Equal(t, uint64(1), s1.ID())
	assert.Equal(t, uint64(2), s2.ID())
	assert.Equal(t, DefaultRoomID, s1.RoomID())
	assert.Equal(t, []string{DefaultRoomID}, m.RoomIDs())

	stats := m.GetRoomStats()
	require.Contains(t, stats, DefaultRoomID)
	assert.Equal(t, 2, stats[DefaultRoomID].PlayerCount)
}

func TestRoomManagerReconnectWithToken(t *testing.T) {
	m := newTestManager(t, RoomConfig{})

	first := &fakeSession{}
	require.NoError(t, m.Join(first, JoinEvent{PlayerName: "a", RoomID: "r1"}))
	resp := joinResponse(t, first)
	assert.Equal(t, "r1", resp.RoomID)

	// Token 里的房间优先于请求里的房间
	second := &fakeSession{}
	require.NoError(t, m.Join(second, JoinEvent{PlayerName: "a", RoomID: "other", SessionToken: resp.SessionToken}))
	assert.Equal(t, resp.PlayerID, second.ID())
	assert.Equal(t, "r1", second.RoomID())
	assert.True(t, first.isSilentlyClosed())
	assert.Equal(t, []string{DefaultRoomID, "r1"}, m.RoomIDs())

	// 无效 Token 按新玩家处理
	third := &fakeSession{}
	require.NoError(t, m.Join(third, JoinEvent{SessionToken: "garbage"}))
	assert.NotEqual(t, resp.PlayerID, third.ID())
	assert.Equal(t, DefaultRoomID, third.RoomID())
}

func TestRoomManagerHostBotTakesFirstID(t *testing.T) {
	m := newTestManager(t, RoomConfig{HostBot: true})

	s := &fakeSession{}
	require.NoError(t, m.Join(s, JoinEvent{PlayerName: "a"}))
	assert.Equal(t, uint64(2), s.ID())

	// 房间一直在跑，快照之后可能已经有广播
	pkts := s.received(t)
	require.GreaterOrEqual(t, len(pkts), 2)
	snap, err := protocol.ParseStateUpdate(pkts[1])
	require.NoError(t, err)
	assert.Len(t, snap.States, 2)
}

func TestRoomManagerCleanupEmptyRooms(t *testing.T) {
	m := newTestManager(t, RoomConfig{})

	roomID, err := m.CreateRoom()
	require.NoError(t, err)
	busy := &fakeSession{}
	require.NoError(t, m.Join(busy, JoinEvent{RoomID: "busy"}))
	require.Len(t, m.RoomIDs(), 3)

	assert.Equal(t, 0, m.cleanupEmptyRooms(time.Now()))
	assert.Equal(t, 1, m.cleanupEmptyRooms(time.Now().Add(2*RoomEmptyTimeout)))

	ids := m.RoomIDs()
	assert.NotContains(t, ids, roomID)
	assert.Contains(t, ids, DefaultRoomID)
	assert.Contains(t, ids, "busy")
}

func TestRoomManagerDropsInputForUnknownRoom(t *testing.T) {
	m := newTestManager(t, RoomConfig{})
	m.EnqueueInput(InputEvent{PlayerID: 1, RoomID: "missing"})
	assert.Equal(t, []string{DefaultRoomID}, m.RoomIDs())
}
