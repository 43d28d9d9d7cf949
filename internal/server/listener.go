package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	kcp "github.com/xtaci/kcp-go/v5"

	"kartnet/internal/transport"
	"kartnet/pkg/logger"
	"kartnet/pkg/protocol"
)

type ServerListener interface {
	Accept() (net.Conn, error)
	Close() error
	Addr() net.Addr
}

func newListener(proto, addr string) (ServerListener, error) {
	switch proto {
	case "tcp":
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		return &tcpListener{listener: listener}, nil
	case "kcp":
		listener, err := kcp.ListenWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		return &kcpListener{listener: listener}, nil
	case "ws":
		return newWSListener(addr)
	default:
		return nil, fmt.Errorf("不支持的协议: %s", proto)
	}
}

type tcpListener struct {
	listener net.Listener
}

func (l *tcpListener) Accept() (net.Conn, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	// 开启 TCP_NODELAY，禁用 Nagle 算法以减少延迟
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	return conn, nil
}

func (l *tcpListener) Close() error {
	return l.listener.Close()
}

func (l *tcpListener) Addr() net.Addr {
	return l.listener.Addr()
}

type kcpListener struct {
	listener *kcp.Listener
}

func (l *kcpListener) Accept() (net.Conn, error) {
	session, err := l.listener.AcceptKCP()
	if err != nil {
		return nil, err
	}
	// 快速模式：状态包对延迟敏感
	session.SetNoDelay(1, 10, 2, 1)
	session.SetWindowSize(256, 256)
	return session, nil
}

func (l *kcpListener) Close() error {
	return l.listener.Close()
}

func (l *kcpListener) Addr() net.Addr {
	return l.listener.Addr()
}

// wsListener 把 websocket 升级后的连接适配成 net.Conn 交给统一的连接处理
type wsListener struct {
	listener net.Listener
	server   *http.Server
	conns    chan net.Conn
	done     chan struct{}
	once     sync.Once
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  protocol.MaxPacketSize,
	WriteBufferSize: protocol.MaxPacketSize,
	// 开发环境允许任意来源
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newWSListener(addr string) (*wsListener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &wsListener{
		listener: listener,
		conns:    make(chan net.Conn, 16),
		done:     make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(transport.WebSocketPath, l.handleUpgrade)
	l.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := l.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Errorf("websocket 服务异常退出: %v", err)
		}
	}()
	return l, nil
}

func (l *wsListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warnf("websocket 升级失败: %v", err)
		return
	}
	ws.SetReadLimit(protocol.MaxPacketSize + protocol.FrameHeaderSize)

	select {
	case l.conns <- transport.NewWSConn(ws):
	case <-l.done:
		ws.Close()
	}
}

func (l *wsListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *wsListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = l.server.Shutdown(ctx)
	})
	return err
}

func (l *wsListener) Addr() net.Addr {
	return l.listener.Addr()
}
