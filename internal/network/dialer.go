// File: internal/network/dialer.go
package network

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DialerConfig holds configuration for the TCP dialer used by the transport.
type DialerConfig struct {
	Timeout   time.Duration
	KeepAlive time.Duration
	// NoDelay controls TCP_NODELAY.
	NoDelay  bool
	Resolver *net.Resolver
}

// NewDialerConfig returns the default dialer configuration.
func NewDialerConfig() *DialerConfig {
	return &DialerConfig{
		Timeout:   DefaultDialTimeout,
		KeepAlive: DefaultKeepAliveInterval,
		NoDelay:   true,
		Resolver:  net.DefaultResolver,
	}
}

// DialTCPContext establishes a raw TCP connection. Suitable for http.Transport.DialContext.
func DialTCPContext(ctx context.Context, network, address string, config *DialerConfig) (net.Conn, error) {
	if config == nil {
		config = NewDialerConfig()
	}

	dialer := &net.Dialer{
		Timeout:       config.Timeout,
		KeepAlive:     config.KeepAlive,
		FallbackDelay: 300 * time.Millisecond,
		Resolver:      config.Resolver,
	}

	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("tcp dial failed: %w", err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(config.NoDelay); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set TCP_NODELAY: %w", err)
		}
	}
	return conn, nil
}
