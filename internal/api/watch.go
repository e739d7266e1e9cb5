package api

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/matheus3301/parley/internal/wire"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// WatchEvents streams daemon bus events to operators until the client goes
// away or the daemon stops.
func (g *Gateway) WatchEvents(req *wire.WatchRequest, stream grpc.ServerStreamingServer[wire.EventEnvelope]) error {
	ch, unsub := g.bus.Subscribe(req.Namespace, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			payload, err := json.Marshal(evt.Payload)
			if err != nil {
				g.logger.Warn("unencodable event payload", zap.String("kind", evt.Kind), zap.Error(err))
				payload = nil
			}
			if err := stream.Send(&wire.EventEnvelope{
				EventID:          uuid.New().String(),
				Instance:         g.instance,
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
				Kind:             evt.Kind,
				Payload:          payload,
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		case <-g.closing:
			return nil
		}
	}
}
