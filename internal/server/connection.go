package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"kartnet/pkg/logger"
	"kartnet/pkg/protocol"
)

const (
	readTimeout  = 5 * time.Second // 读取超时
	writeTimeout = 1 * time.Second // 写入超时

	heartbeatInterval = 2 * time.Second
	heartbeatTimeout  = 15 * time.Second

	// 客户端每个 tick 发一次输入批，留出两倍余量
	inputBurst = 32
)

var (
	ErrSendQueueFull    = errors.New("发送队列满")
	ErrConnectionClosed = errors.New("连接已关闭")
)

// Connection 表示一个客户端连接
type Connection struct {
	conn   net.Conn
	server *GameServer
	remote string

	playerID *atomic.Uint64 // 0 表示未加入
	roomID   *atomic.String

	// 发送队列
	sendChan chan []byte
	closeCh  chan struct{}
	closed   bool
	closeMu  sync.Mutex

	inputLimiter  *rate.Limiter
	droppedInputs *atomic.Uint64

	lastRecvTime *atomic.Time
	rtt          *atomic.Duration
}

// NewConnection 创建新连接，连接到服务器上
func NewConnection(conn net.Conn, server *GameServer) *Connection {
	tickRate := server.cfg.TickRate
	return &Connection{
		conn:          conn,
		server:        server,
		remote:        conn.RemoteAddr().String(),
		playerID:      atomic.NewUint64(0),
		roomID:        atomic.NewString(""),
		sendChan:      make(chan []byte, 256), // 发送队列缓冲区
		closeCh:       make(chan struct{}),
		inputLimiter:  rate.NewLimiter(rate.Limit(2*tickRate), inputBurst),
		droppedInputs: atomic.NewUint64(0),
		lastRecvTime:  atomic.NewTime(time.Now()),
		rtt:           atomic.NewDuration(0),
	}
}

// Handle 处理连接
func (c *Connection) Handle(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	c.logEntry().Debug("连接处理开始")

	wg.Add(1)
	go c.startHeartbeat(ctx, wg)

	wg.Add(1)
	go c.sendLoop(ctx, wg)

	wg.Add(1)
	go c.receiveLoop(ctx, wg)

	// 等待上下文取消或连接关闭
	select {
	case <-ctx.Done():
	case <-c.closeCh:
	}

	c.Close()
}

// Close 关闭连接，并让玩家离开房间
func (c *Connection) Close() {
	c.closeWithNotify(true)
}

// CloseWithoutNotify 关闭连接但不触发移除玩家逻辑（房间关闭或被新连接顶替时）
func (c *Connection) CloseWithoutNotify() {
	c.closeWithNotify(false)
}

func (c *Connection) closeWithNotify(notify bool) {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	close(c.closeCh)
	close(c.sendChan)
	c.closeMu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}

	if notify {
		if playerID := c.ID(); playerID != 0 {
			c.server.removePlayer(c, playerID, c.RoomID())
		}
	}

	c.logEntry().WithField("dropped_inputs", c.droppedInputs.Load()).Info("连接已关闭")
}

// Send 发送数据（异步），data 为未分帧的数据包
func (c *Connection) Send(data []byte) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.sendChan <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// sendLoop 发送循环
func (c *Connection) sendLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	var frame []byte
	for {
		select {
		case <-ctx.Done():
			return

		case data, ok := <-c.sendChan:
			if !ok {
				return
			}

			var err error
			frame, err = protocol.AppendFrame(frame[:0], data)
			if err != nil {
				c.logEntry().Warnf("丢弃数据包: %v", err)
				continue
			}

			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := c.conn.Write(frame); err != nil {
				c.logEntry().Warnf("发送数据失败: %v", err)
				c.Close()
				return
			}
		}
	}
}

// receiveLoop 接收循环
func (c *Connection) receiveLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		data, err := protocol.ReadFrame(c.conn)
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				c.logEntry().Info("读取超时")
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			default:
				c.logEntry().Warnf("读取失败: %v", err)
			}
			c.Close()
			return
		}

		c.onMessageReceived()
		if len(data) == 0 {
			continue
		}
		if err := c.handleMessage(data); err != nil {
			c.logEntry().Debugf("处理消息失败: %v", err)
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Connection) handleMessage(data []byte) error {
	event, err := DecodePacket(data)
	if err != nil {
		return fmt.Errorf("反序列化失败: %w", err)
	}

	switch event.Kind {
	case EventJoin:
		if c.ID() != 0 {
			return fmt.Errorf("玩家 %d 重复加入", c.ID())
		}
		if err := c.server.handleJoinRequest(c, event.Join); err != nil {
			c.logEntry().Warnf("加入失败: %v", err)
			_ = c.Send(encode(protocol.NewJoinErrorPacket(err.Error())))
			return nil
		}

	case EventInput:
		if c.ID() == 0 {
			return errors.New("未加入房间就发送输入")
		}
		if !c.inputLimiter.Allow() {
			c.droppedInputs.Inc()
			return nil
		}
		event.Input.PlayerID = c.ID()
		event.Input.RoomID = c.RoomID()
		c.server.handleClientInput(event.Input)

	case EventPing:
		c.server.handlePing(c, event.Ping)

	case EventPong:
		c.handlePong(event.Pong)

	default:
		return fmt.Errorf("未知消息类型: %s", event.Type)
	}

	return nil
}

// String 返回连接的字符串表示
func (c *Connection) String() string {
	if id := c.ID(); id != 0 {
		return fmt.Sprintf("Connection{%d, %s}", id, c.conn.RemoteAddr())
	}
	return fmt.Sprintf("Connection{%s}", c.conn.RemoteAddr())
}

func (c *Connection) ID() uint64 {
	return c.playerID.Load()
}

func (c *Connection) RoomID() string {
	return c.roomID.Load()
}

// Bind 加入成功后由房间调用
func (c *Connection) Bind(playerID uint64, roomID string) {
	c.roomID.Store(roomID)
	c.playerID.Store(playerID)
}

func (c *Connection) logEntry() *logrus.Entry {
	return logger.Log.WithFields(logrus.Fields{
		"remote": c.remote,
		"player": c.ID(),
		"room":   c.RoomID(),
	})
}

// RTT 最近一次心跳测得的往返时间
func (c *Connection) RTT() time.Duration {
	return c.rtt.Load()
}

func (c *Connection) startHeartbeat(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-ticker.C:
			if time.Since(c.lastRecvTime.Load()) > heartbeatTimeout {
				c.logEntry().Info("心跳超时")
				c.Close()
				return
			}
			c.sendPing()
		}
	}
}

func (c *Connection) sendPing() {
	_ = c.Send(encode(protocol.NewPingPacket(time.Now().UnixMilli())))
}

func (c *Connection) handlePong(pong *PongEvent) {
	if pong == nil || pong.ClientTime <= 0 {
		return
	}
	rtt := time.Duration(time.Now().UnixMilli()-pong.ClientTime) * time.Millisecond
	if rtt >= 0 {
		c.rtt.Store(rtt)
	}
}

func (c *Connection) onMessageReceived() {
	c.lastRecvTime.Store(time.Now())
}
