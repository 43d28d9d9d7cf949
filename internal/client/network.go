package client

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

	"kartnet/internal/config"
	"kartnet/internal/transport"
	"kartnet/pkg/core"
	"kartnet/pkg/logger"
	"kartnet/pkg/protocol"
)

const writeTimeout = time.Second

var (
	ErrJoinRejected = errors.New("服务器拒绝加入")
	ErrJoinTimeout  = errors.New("等待加入响应超时")
	ErrNotConnected = errors.New("未连接")
)

// StateSink 接收本车的权威状态，在网络接收协程里调用
type StateSink interface {
	OnServerState(state core.StatePayload) bool
}

// NetworkClient 网络客户端
type NetworkClient struct {
	cfg  config.Client
	conn net.Conn
	now  func() time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	connected *atomic.Bool

	// 玩家信息
	playerID *atomic.Uint64
	roomID   *atomic.String
	token    *atomic.String

	sinkMu sync.RWMutex
	sink   StateSink

	remotes *RemoteKarts

	// 消息队列
	joinChan  chan *protocol.JoinResponse
	leaveChan chan uint64
	sendChan  chan []byte
	errChan   chan error

	// 最近发出的输入，每次整体重发以抵消丢包；只在 tick 循环里访问
	recent []core.InputPayload

	rtt            *atomic.Duration
	serverTick     *atomic.Int64
	inputsSent     *atomic.Uint64
	batchesDropped *atomic.Uint64
	statesIgnored  *atomic.Uint64
}

// NewNetworkClient 创建网络客户端
func NewNetworkClient(cfg config.Client) *NetworkClient {
	if cfg.InputSendWindow < 1 {
		cfg.InputSendWindow = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &NetworkClient{
		cfg:            cfg,
		now:            time.Now,
		ctx:            ctx,
		cancel:         cancel,
		connected:      atomic.NewBool(false),
		playerID:       atomic.NewUint64(0),
		roomID:         atomic.NewString(""),
		token:          atomic.NewString(""),
		remotes:        NewRemoteKarts(),
		joinChan:       make(chan *protocol.JoinResponse, 1),
		leaveChan:      make(chan uint64, 16),
		sendChan:       make(chan []byte, sendQueueSize),
		errChan:        make(chan error, 1),
		recent:         make([]core.InputPayload, 0, cfg.InputSendWindow),
		rtt:            atomic.NewDuration(0),
		serverTick:     atomic.NewInt64(0),
		inputsSent:     atomic.NewUint64(0),
		batchesDropped: atomic.NewUint64(0),
		statesIgnored:  atomic.NewUint64(0),
	}
}

func (nc *NetworkClient) log() *logrus.Entry {
	return logger.Log.WithFields(logrus.Fields{
		"player": nc.playerID.Load(),
		"room":   nc.roomID.Load(),
	})
}

// SetSessionToken 断线后用上次的 Token 接回原来的车
func (nc *NetworkClient) SetSessionToken(token string) {
	nc.token.Store(token)
}

// SessionToken 最近一次加入时服务器下发的 Token
func (nc *NetworkClient) SessionToken() string {
	return nc.token.Load()
}

// Connect 拨号并完成加入握手
func (nc *NetworkClient) Connect(ctx context.Context) (*protocol.JoinResponse, error) {
	nc.log().Infof("连接到服务器: %s (%s)", nc.cfg.Addr, nc.cfg.Proto)

	conn, err := transport.Dial(ctx, nc.cfg.Proto, nc.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("连接服务器失败: %w", err)
	}
	return nc.ConnectConn(ctx, conn)
}

// ConnectConn 在已建立的连接上完成加入握手
func (nc *NetworkClient) ConnectConn(ctx context.Context, conn net.Conn) (*protocol.JoinResponse, error) {
	nc.conn = conn
	nc.connected.Store(true)

	nc.wg.Add(2)
	go nc.receiveLoop()
	go nc.sendLoop()

	join := protocol.NewJoinRequestPacket(nc.cfg.Name, nc.cfg.Room, nc.token.Load())
	if err := nc.sendPacket(join); err != nil {
		nc.Close()
		return nil, fmt.Errorf("发送加入请求失败: %w", err)
	}

	timer := time.NewTimer(JoinTimeout)
	defer timer.Stop()

	select {
	case resp := <-nc.joinChan:
		nc.log().WithFields(logrus.Fields{
			"tick":      resp.ServerTick,
			"tick_rate": resp.TickRate,
		}).Info("已加入")

		nc.wg.Add(1)
		go nc.pingLoop()
		return resp, nil

	case err := <-nc.errChan:
		nc.Close()
		return nil, err

	case <-timer.C:
		nc.Close()
		return nil, ErrJoinTimeout

	case <-ctx.Done():
		nc.Close()
		return nil, ctx.Err()
	}
}

// SetLocalSink 设置本车权威状态的接收者（通常是预测器）
func (nc *NetworkClient) SetLocalSink(sink StateSink) {
	nc.sinkMu.Lock()
	nc.sink = sink
	nc.sinkMu.Unlock()
}

func (nc *NetworkClient) localSink() StateSink {
	nc.sinkMu.RLock()
	defer nc.sinkMu.RUnlock()
	return nc.sink
}

// Close 关闭连接
func (nc *NetworkClient) Close() {
	nc.closeOnce.Do(func() {
		nc.connected.Store(false)
		nc.cancel()
		if nc.conn != nil {
			nc.conn.Close()
		}
		nc.wg.Wait()
		nc.log().Info("网络客户端已关闭")
	})
}

// Done 连接断开后关闭
func (nc *NetworkClient) Done() <-chan struct{} {
	return nc.ctx.Done()
}

// Errors 连接出错时收到一次
func (nc *NetworkClient) Errors() <-chan error {
	return nc.errChan
}

// PlayerID 获取玩家 ID
func (nc *NetworkClient) PlayerID() uint64 {
	return nc.playerID.Load()
}

// IsConnected 检查是否已连接
func (nc *NetworkClient) IsConnected() bool {
	return nc.connected.Load()
}

// Remotes 远端车辆
func (nc *NetworkClient) Remotes() *RemoteKarts {
	return nc.remotes
}

// RTT 最近一次 Ping 的往返时延
func (nc *NetworkClient) RTT() time.Duration {
	return nc.rtt.Load()
}

// ServerTick 最近一次 Pong 带回的服务器 tick
func (nc *NetworkClient) ServerTick() core.Tick {
	return core.Tick(nc.serverTick.Load())
}

// ReceivePlayerLeave 接收玩家离开（非阻塞）
func (nc *NetworkClient) ReceivePlayerLeave() (uint64, bool) {
	select {
	case id := <-nc.leaveChan:
		return id, true
	default:
		return 0, false
	}
}

// NetworkStats 网络统计
type NetworkStats struct {
	InputsSent     uint64
	BatchesDropped uint64
	StatesIgnored  uint64
	RTT            time.Duration
}

func (nc *NetworkClient) Stats() NetworkStats {
	return NetworkStats{
		InputsSent:     nc.inputsSent.Load(),
		BatchesDropped: nc.batchesDropped.Load(),
		StatesIgnored:  nc.statesIgnored.Load(),
		RTT:            nc.rtt.Load(),
	}
}

// ========== 消息接收 ==========

func (nc *NetworkClient) receiveLoop() {
	defer nc.wg.Done()

	for {
		data, err := protocol.ReadFrame(nc.conn)
		if err != nil {
			select {
			case <-nc.ctx.Done():
			default:
				if !errors.Is(err, io.EOF) {
					nc.log().Warnf("读取失败: %v", err)
				}
				nc.fail(fmt.Errorf("连接断开: %w", err))
			}
			return
		}
		if len(data) == 0 {
			continue
		}

		if err := nc.handleMessage(data); err != nil {
			nc.log().Debugf("处理消息失败: %v", err)
		}
	}
}

// fail 记录第一个错误并关闭连接上下文
func (nc *NetworkClient) fail(err error) {
	select {
	case nc.errChan <- err:
	default:
	}
	nc.connected.Store(false)
	nc.cancel()
}

func (nc *NetworkClient) handleMessage(data []byte) error {
	pkt, err := protocol.UnmarshalPacket(data)
	if err != nil {
		return fmt.Errorf("反序列化失败: %w", err)
	}

	switch pkt.Type {
	case protocol.MessageTypeJoinResponse:
		resp, err := protocol.ParseJoinResponse(pkt)
		if err != nil {
			return err
		}
		if !resp.Success {
			nc.fail(fmt.Errorf("%w: %s", ErrJoinRejected, resp.ErrorMessage))
			return nil
		}
		// 先记下自己的 ID，紧随其后的快照要靠它分流
		nc.playerID.Store(resp.PlayerID)
		nc.roomID.Store(resp.RoomID)
		nc.token.Store(resp.SessionToken)
		select {
		case nc.joinChan <- resp:
		default:
		}

	case protocol.MessageTypeStateUpdate:
		update, err := protocol.ParseStateUpdate(pkt)
		if err != nil {
			return err
		}
		nc.routeStates(update.States)

	case protocol.MessageTypePing:
		ping, err := protocol.ParsePing(pkt)
		if err != nil {
			return err
		}
		// 服务器心跳，原样带回它的时间
		return nc.sendPacket(protocol.NewPongPacket(ping.ClientTime, nc.now().UnixMilli(), 0))

	case protocol.MessageTypePong:
		pong, err := protocol.ParsePong(pkt)
		if err != nil {
			return err
		}
		nc.handlePong(pong)

	case protocol.MessageTypePlayerLeave:
		leave, err := protocol.ParsePlayerLeave(pkt)
		if err != nil {
			return err
		}
		nc.remotes.Remove(leave.PlayerID)
		select {
		case nc.leaveChan <- leave.PlayerID:
		default:
		}

	default:
		return fmt.Errorf("未知消息类型: %s", pkt.Type)
	}
	return nil
}

// routeStates 本车状态交给预测器纠错，其他车只做插值
func (nc *NetworkClient) routeStates(states []core.StatePayload) {
	self := nc.playerID.Load()
	nowMs := nc.now().UnixMilli()
	sink := nc.localSink()

	for _, st := range states {
		if st.OwnerID == self {
			if sink == nil || !sink.OnServerState(st) {
				nc.statesIgnored.Inc()
			}
			continue
		}
		nc.remotes.Add(nowMs, st)
	}
}

func (nc *NetworkClient) handlePong(pong *protocol.Pong) {
	rtt := time.Duration(nc.now().UnixMilli()-pong.ClientTime) * time.Millisecond
	if rtt < 0 {
		return
	}
	nc.rtt.Store(rtt)
	nc.serverTick.Store(int64(pong.ServerTick))

	// 插值延迟跟着单程时延走，抖动越大缓冲越深
	nc.remotes.SetInterpolationDelay(rtt.Milliseconds()/2 + MinInterpolationDelayMs)
}

// ========== 消息发送 ==========

func (nc *NetworkClient) sendLoop() {
	defer nc.wg.Done()

	var frame []byte
	for {
		select {
		case <-nc.ctx.Done():
			return

		case data := <-nc.sendChan:
			var err error
			frame, err = protocol.AppendFrame(frame[:0], data)
			if err != nil {
				nc.log().Warnf("丢弃数据包: %v", err)
				continue
			}
			_ = nc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := nc.conn.Write(frame); err != nil {
				nc.fail(fmt.Errorf("发送数据失败: %w", err))
				return
			}
		}
	}
}

func (nc *NetworkClient) pingLoop() {
	defer nc.wg.Done()

	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-nc.ctx.Done():
			return
		case <-ticker.C:
			_ = nc.sendPacket(protocol.NewPingPacket(nc.now().UnixMilli()))
		}
	}
}

// sendPacket 非阻塞入队，队列满时丢弃
func (nc *NetworkClient) sendPacket(pkt *protocol.Packet) error {
	if !nc.connected.Load() {
		return ErrNotConnected
	}
	select {
	case nc.sendChan <- protocol.MarshalPacket(pkt):
		return nil
	default:
		return errors.New("发送队列满")
	}
}

// SendInput 实现 netcode.Sender：把这条输入连同之前的若干条一起发出
// 服务器按 tick 去重，重复发送只为弥补丢包
func (nc *NetworkClient) SendInput(input core.InputPayload) {
	nc.recent = append(nc.recent, input)
	if over := len(nc.recent) - nc.cfg.InputSendWindow; over > 0 {
		nc.recent = append(nc.recent[:0], nc.recent[over:]...)
	}

	if err := nc.sendPacket(protocol.NewInputBatchPacket(nc.recent)); err != nil {
		nc.batchesDropped.Inc()
		return
	}
	nc.inputsSent.Inc()
}
