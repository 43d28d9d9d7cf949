package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	kcp "github.com/xtaci/kcp-go/v5"
)

// WebSocketPath websocket 模式下的升级路径
const WebSocketPath = "/ws"

const dialTimeout = 5 * time.Second

// Dial 按协议建立到服务器的字节流连接
func Dial(ctx context.Context, proto, addr string) (net.Conn, error) {
	switch proto {
	case "", "tcp":
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
		}
		return conn, nil
	case "kcp":
		conn, err := kcp.DialWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		conn.SetStreamMode(true)
		conn.SetNoDelay(1, 10, 2, 1)
		return conn, nil
	case "ws":
		u := url.URL{Scheme: "ws", Host: addr, Path: WebSocketPath}
		dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
		ws, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, err
		}
		return NewWSConn(ws), nil
	default:
		return nil, fmt.Errorf("不支持的协议: %s", proto)
	}
}
