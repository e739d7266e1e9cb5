package api

import (
	"context"
	"time"

	"github.com/matheus3301/parley/internal/wire"
)

// GetStatus reports the serving state, live connection counts and store
// totals. It needs no token.
func (g *Gateway) GetStatus(ctx context.Context, _ *wire.StatusRequest) (*wire.StatusResponse, error) {
	stats := g.hub.Stats()
	resp := &wire.StatusResponse{
		Instance:    g.instance,
		Status:      string(g.machine.Current()),
		SinceUnixMs: g.machine.Since().UnixMilli(),
		UptimeMs:    time.Since(g.startedAt).Milliseconds(),
		Connections: stats.Connections,
		Online:      stats.Online,
		Subscribers: g.bus.Subscribers(),
	}

	if g.db != nil {
		if n, err := g.db.IdentityCount(ctx); err == nil {
			resp.Identities = n
		}
		if n, err := g.db.MessageCount(ctx); err == nil {
			resp.Messages = n
		}
	}

	return resp, nil
}
