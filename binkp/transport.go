package binkp

import (
	"context"
	"net"
	"strconv"
	"time"
)

// DefaultPort is the well-known Binkp TCP port per spec §6.
const DefaultPort = 24554

// Init performs whatever process-wide setup the net-transport collaborator
// requires. On every platform Go targets this is a no-op; the hook exists
// so a supervisor that links a historical OS family's networking stack has
// somewhere to put its WSAStartup-equivalent, per spec §9's "Global state"
// note. The core never calls this itself.
func Init() error { return nil }

// Teardown is Init's counterpart, called once by the supervisor at shutdown.
func Teardown() error { return nil }

// Dial opens an originator connection to host:port, applying connectTimeout
// to the TCP handshake itself (not the Binkp frame timeout, which applies
// once the session starts exchanging frames).
func Dial(ctx context.Context, host string, port int, connectTimeout time.Duration) (net.Conn, error) {
	if port == 0 {
		port = DefaultPort
	}
	d := net.Dialer{Timeout: connectTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, NewError(ErrNetwork, "dial: "+err.Error())
	}
	return conn, nil
}

// Listen opens a TCP listener bound to addr:port for the answerer role.
func Listen(addr string, port int) (net.Listener, error) {
	if port == 0 {
		port = DefaultPort
	}
	l, err := net.Listen("tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return nil, NewError(ErrNetwork, "listen: "+err.Error())
	}
	return l, nil
}
