// Package sink publishes display windows to downstream viewers.
package sink

import (
	"encoding/json"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dualscope/internal/scope"
)

// UDP pushes each window as one JSON datagram. Delivery is fire-and-forget:
// a failed write is logged and dropped, never retried, so the dispatcher
// loop can never be held up by a slow or absent viewer.
type UDP struct {
	conn   *net.UDPConn
	logger *zap.Logger
}

// NewUDP dials the viewer address.
func NewUDP(addr string, logger *zap.Logger) (*UDP, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving sink address %s", addr)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing sink %s", addr)
	}
	return &UDP{conn: conn, logger: logger}, nil
}

// Publish sends one window.
func (u *UDP) Publish(win scope.Window) {
	payload, err := json.Marshal(win)
	if err != nil {
		u.logger.Warn("[sink] error encoding window", zap.Error(err))
		return
	}
	if _, err := u.conn.Write(payload); err != nil {
		u.logger.Warn("[sink] error writing window to UDP connection", zap.Error(err))
		return
	}
	u.logger.Debug("[sink] published window",
		zap.Int("samples", len(win.Ch1)),
		zap.Int("bytes", len(payload)),
		zap.String("triggerState", win.TriggerState),
	)
}

// Close closes the connection.
func (u *UDP) Close() error {
	return u.conn.Close()
}
