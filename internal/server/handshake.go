package server

import (
	"context"
	"net"

	"github.com/ssamtools/go-ssam-server/internal/ctl"
)

// Handshake runs the required TCP hello exchange.
func (s *Server) Handshake(ctx context.Context, c net.Conn) error {
	return ctl.Handshake(ctx, c, s.handshakeTimeout)
}
