package network

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/automoto/doomerang-sync/config"
	"github.com/automoto/doomerang-sync/shared/protocol"
	"github.com/coder/websocket"
	"github.com/rotisserie/eris"
	"github.com/xtaci/kcp-go"
)

// DatagramDialer opens the unreliable channel. Tests swap it for a fake.
type DatagramDialer func(ctx context.Context, addr string) (net.Conn, error)

func dialUDP(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, eris.Wrapf(err, "dial udp %s", addr)
	}
	return conn, nil
}

// dialStream opens the reliable channel for the configured transport. The
// bool reports whether the connection honours per-call read deadlines; a
// websocket NetConn tears itself down when a deadline expires, so its loop
// relies on Close to unblock instead.
func dialStream(ctx context.Context, cfg config.Config) (net.Conn, bool, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.TCPPort))
	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.DialTimeoutMs)*time.Millisecond)
	defer cancel()

	switch cfg.Transport {
	case config.TransportKCP:
		conn, err := kcp.Dial(addr)
		if err != nil {
			return nil, false, eris.Wrapf(err, "dial kcp %s", addr)
		}
		if sess, ok := conn.(*kcp.UDPSession); ok {
			// fast mode: nodelay, 10ms interval, fast resend, no congestion window
			sess.SetNoDelay(1, 10, 2, 1)
			sess.SetStreamMode(true)
			sess.SetWindowSize(256, 256)
			sess.SetACKNoDelay(true)
		}
		return conn, true, nil

	case config.TransportWS:
		ws, _, err := websocket.Dial(ctx, "ws://"+addr, nil)
		if err != nil {
			return nil, false, eris.Wrapf(err, "dial ws %s", addr)
		}
		ws.SetReadLimit(int64(cfg.MaxFrameBytes) + protocol.HeaderLen)
		return websocket.NetConn(context.Background(), ws, websocket.MessageBinary), false, nil

	default:
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, false, eris.Wrapf(err, "dial tcp %s", addr)
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
		return conn, true, nil
	}
}
