package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"kartnet/pkg/core"
	"kartnet/pkg/logger"
)

const (
	DefaultRoomID    = "default"        // 默认房间 ID
	MaxRooms         = 100              // 最大房间数
	RoomEmptyTimeout = 60 * time.Second // 房间空置超时
)

type RoomManager struct {
	ctx       context.Context
	cfg       RoomConfig
	rooms     map[string]*Room // 房间 ID -> 房间
	roomMutex sync.RWMutex     // 保护 rooms map
	wg        sync.WaitGroup   // 等待组
	shutdown  chan struct{}    // 关闭信号
	once      sync.Once
	nextID    *atomic.Uint64
}

// NewRoomManager 创建新的房间管理器
func NewRoomManager(ctx context.Context, cfg RoomConfig) *RoomManager {
	return &RoomManager{
		ctx:      ctx,
		cfg:      cfg,
		rooms:    make(map[string]*Room),
		shutdown: make(chan struct{}),
		nextID:   atomic.NewUint64(0),
	}
}

// Run 启动清理协程并创建默认房间
func (m *RoomManager) Run() error {
	m.wg.Add(1)
	go m.cleanupLoop()

	_, err := m.getOrCreateRoom(DefaultRoomID)
	return err
}

// NextPlayerID 全服唯一的玩家 ID，从 1 开始
func (m *RoomManager) NextPlayerID() uint64 {
	return m.nextID.Inc()
}

// cleanupLoop 定期清理空房间
func (m *RoomManager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.shutdown:
			return
		case <-ticker.C:
			m.cleanupEmptyRooms(time.Now())
		}
	}
}

// cleanupEmptyRooms 清理空置超时的房间（保留默认房间）
func (m *RoomManager) cleanupEmptyRooms(now time.Time) int {
	m.roomMutex.Lock()
	defer m.roomMutex.Unlock()

	removed := 0
	for roomID, room := range m.rooms {
		if roomID == DefaultRoomID {
			continue
		}
		select {
		case <-room.Done():
			// 崩溃退出的房间直接移除
		default:
			if room.PlayerCount() > 0 || now.Sub(room.IdleSince()) < RoomEmptyTimeout {
				continue
			}
		}
		logger.Log.WithField("room", roomID).Info("清理空房间")
		room.Shutdown()
		delete(m.rooms, roomID)
		removed++
	}
	return removed
}

// getOrCreateRoom 获取或创建房间
func (m *RoomManager) getOrCreateRoom(roomID string) (*Room, error) {
	m.roomMutex.Lock()
	defer m.roomMutex.Unlock()

	if room, exists := m.rooms[roomID]; exists {
		return room, nil
	}
	if len(m.rooms) >= MaxRooms {
		return nil, fmt.Errorf("房间数已达上限 (%d)", MaxRooms)
	}

	logger.Log.WithField("room", roomID).Info("创建新房间")
	room := NewRoom(m.ctx, roomID, m.cfg)
	if m.cfg.HostBot && roomID == DefaultRoomID {
		if err := room.SpawnHostBot(m.NextPlayerID()); err != nil {
			return nil, err
		}
	}
	m.rooms[roomID] = room

	m.wg.Add(1)
	go room.Run(&m.wg)

	return room, nil
}

func (m *RoomManager) room(roomID string) (*Room, bool) {
	m.roomMutex.RLock()
	defer m.roomMutex.RUnlock()
	room, ok := m.rooms[roomID]
	return room, ok
}

// Join 玩家加入房间；带有效 Token 时回到原房间、原来的车
func (m *RoomManager) Join(session Session, req JoinEvent) error {
	roomID := req.RoomID
	if roomID == "" {
		roomID = DefaultRoomID
	}

	playerID := uint64(0)
	reconnect := false
	if req.SessionToken != "" {
		id, tokenRoom, err := VerifySessionToken(req.SessionToken)
		if err != nil {
			logger.Log.Warnf("重连 Token 无效，按新玩家处理: %v", err)
		} else {
			playerID, roomID, reconnect = id, tokenRoom, true
		}
	}
	if playerID == 0 {
		playerID = m.NextPlayerID()
	}

	room, err := m.getOrCreateRoom(roomID)
	if err != nil {
		return err
	}
	if err := room.Join(session, playerID, req.PlayerName, reconnect); err != nil {
		return fmt.Errorf("加入房间 %s 失败: %w", roomID, err)
	}
	return nil
}

// EnqueueInput 将输入放入对应房间的队列
func (m *RoomManager) EnqueueInput(input InputEvent) {
	room, exists := m.room(input.RoomID)
	if !exists {
		logger.Log.WithFields(logrus.Fields{
			"room":   input.RoomID,
			"player": input.PlayerID,
		}).Warn("房间不存在，输入被丢弃")
		return
	}
	room.EnqueueInput(input)
}

// Leave 玩家连接断开
func (m *RoomManager) Leave(session Session, playerID uint64, roomID string) {
	room, exists := m.room(roomID)
	if !exists {
		return
	}
	room.Leave(playerID, session)
}

// CurrentTick 房间当前 tick
func (m *RoomManager) CurrentTick(roomID string) core.Tick {
	if room, ok := m.room(roomID); ok {
		return room.CurrentTick()
	}
	return 0
}

// Shutdown 关闭所有房间
func (m *RoomManager) Shutdown() {
	m.once.Do(func() { close(m.shutdown) })

	m.roomMutex.Lock()
	logger.Log.Infof("关闭 %d 个房间...", len(m.rooms))
	for _, room := range m.rooms {
		room.Shutdown()
	}
	m.roomMutex.Unlock()

	m.wg.Wait()
	logger.Log.Info("所有房间已关闭")
}

// GetRoomStats 获取房间统计信息
func (m *RoomManager) GetRoomStats() map[string]RoomStats {
	m.roomMutex.RLock()
	rooms := make(map[string]*Room, len(m.rooms))
	for id, room := range m.rooms {
		rooms[id] = room
	}
	m.roomMutex.RUnlock()

	stats := make(map[string]RoomStats, len(rooms))
	for id, room := range rooms {
		if s, err := room.Stats(); err == nil {
			stats[id] = s
		}
	}
	return stats
}

// RoomIDs 当前房间列表，按 ID 排序
func (m *RoomManager) RoomIDs() []string {
	m.roomMutex.RLock()
	defer m.roomMutex.RUnlock()

	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CreateRoom 创建新房间（返回房间 ID）
func (m *RoomManager) CreateRoom() (string, error) {
	roomID := fmt.Sprintf("room_%d", time.Now().UnixNano())
	if _, err := m.getOrCreateRoom(roomID); err != nil {
		return "", err
	}
	return roomID, nil
}
