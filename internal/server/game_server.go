package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"kartnet/internal/config"
	"kartnet/pkg/logger"
	"kartnet/pkg/protocol"
)

// GameServer 游戏服务器：接受连接，把事件转交给房间
type GameServer struct {
	cfg   config.Server
	rooms *RoomManager

	listener ServerListener

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown chan struct{}
	once     sync.Once
	ready    chan struct{}
}

// NewGameServer 创建新的游戏服务器
func NewGameServer(cfg config.Server) *GameServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &GameServer{
		cfg: cfg,
		rooms: NewRoomManager(ctx, RoomConfig{
			TickRate:   cfg.TickRate,
			BufferSize: cfg.BufferSize,
			MaxPlayers: cfg.MaxPlayers,
			GapWait:    cfg.GapWait,
			HostBot:    cfg.HostBot,
		}),
		ctx:      ctx,
		cancel:   cancel,
		shutdown: make(chan struct{}),
		ready:    make(chan struct{}),
	}
}

// Start 启动服务器，阻塞到 Shutdown
func (s *GameServer) Start() error {
	listener, err := newListener(s.cfg.Proto, s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}
	s.listener = listener

	if err := s.rooms.Run(); err != nil {
		listener.Close()
		return fmt.Errorf("创建默认房间失败: %w", err)
	}

	logger.Log.Infof("服务器监听中: %s (%s)", listener.Addr(), s.cfg.Proto)

	s.wg.Add(1)
	go s.acceptLoop()
	close(s.ready)

	<-s.shutdown
	return nil
}

// Ready 监听成功后关闭
func (s *GameServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr 实际监听地址
func (s *GameServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Rooms 房间管理器
func (s *GameServer) Rooms() *RoomManager {
	return s.rooms
}

// Shutdown 优雅关闭服务器
func (s *GameServer) Shutdown() {
	s.once.Do(func() {
		logger.Log.Info("正在关闭服务器...")

		s.cancel()
		s.rooms.Shutdown()

		if s.listener != nil {
			s.listener.Close()
		}
		close(s.shutdown)

		s.wg.Wait()
		logger.Log.Info("服务器已关闭")
	})
}

// acceptLoop 接受客户端连接
func (s *GameServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				logger.Log.Warnf("接受连接失败: %v", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
		}

		logger.Log.Debugf("新连接来自: %s", conn.RemoteAddr())

		connection := NewConnection(conn, s)
		s.wg.Add(1)
		go connection.Handle(s.ctx, &s.wg)
	}
}

// handleJoinRequest 处理加入请求
func (s *GameServer) handleJoinRequest(session Session, req *JoinEvent) error {
	return s.rooms.Join(session, *req)
}

// handleClientInput 处理客户端输入
func (s *GameServer) handleClientInput(input *InputEvent) {
	s.rooms.EnqueueInput(*input)
}

// handlePing 回复 Pong，带上房间当前 tick 供客户端估算时钟偏差
func (s *GameServer) handlePing(session Session, ping *PingEvent) {
	pong := protocol.NewPongPacket(ping.ClientTime, time.Now().UnixMilli(), s.rooms.CurrentTick(session.RoomID()))
	_ = session.Send(encode(pong))
}

// removePlayer 连接断开
func (s *GameServer) removePlayer(session Session, playerID uint64, roomID string) {
	s.rooms.Leave(session, playerID, roomID)
}
