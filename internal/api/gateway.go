package api

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/matheus3301/parley/internal/auth"
	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/hub"
	"github.com/matheus3301/parley/internal/registry"
	"github.com/matheus3301/parley/internal/status"
	"github.com/matheus3301/parley/internal/store"
	"github.com/matheus3301/parley/internal/wire"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Gateway implements the parley.v1.Gateway gRPC service.
type Gateway struct {
	instance  string
	startedAt time.Time
	hub       *hub.Hub
	auth      *auth.Verifier
	machine   *status.Machine
	bus       *bus.Bus
	db        *store.DB
	logger    *zap.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

var _ wire.GatewayServer = (*Gateway)(nil)

// NewGateway creates the gateway service.
func NewGateway(
	instance string,
	h *hub.Hub,
	v *auth.Verifier,
	machine *status.Machine,
	b *bus.Bus,
	db *store.DB,
	logger *zap.Logger,
) *Gateway {
	return &Gateway{
		instance:  instance,
		startedAt: time.Now(),
		hub:       h,
		auth:      v,
		machine:   machine,
		bus:       b,
		db:        db,
		logger:    logger,
		closing:   make(chan struct{}),
	}
}

// Close ends every open WatchEvents stream. Connect streams are ended
// through the hub.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() { close(g.closing) })
}

// Connect runs one client session. Inbound frames are handled in order by a
// reader goroutine; this goroutine is the only writer to the stream.
func (g *Gateway) Connect(stream grpc.BidiStreamingServer[wire.ClientFrame, wire.ServerFrame]) error {
	if !g.machine.Accepting() {
		return grpcstatus.Errorf(codes.Unavailable, "daemon is %s", g.machine.Current())
	}
	ctx := stream.Context()
	identityID, err := g.auth.FromIncomingContext(ctx)
	if err != nil {
		return toStatus(err)
	}
	c, err := g.hub.Connected(ctx, identityID)
	if err != nil {
		return toStatus(err)
	}

	readerDone := make(chan error, 1)
	reason := "client closed"
	defer func() {
		// Disconnect only once the reader has stopped handling frames, so no
		// operation for c can race with its teardown.
		go func() {
			<-readerDone
			g.hub.Disconnected(ctx, c.ID, reason)
		}()
	}()

	hello := &wire.ServerFrame{Kind: wire.KindConnected, ConnID: c.ID, IdentityID: identityID}
	if err := stream.Send(hello); err != nil {
		reason = "send failed"
		close(readerDone)
		return err
	}

	errc := make(chan error, 1)
	go func() {
		err := g.readLoop(ctx, stream, c)
		errc <- err
		close(readerDone)
	}()

	for {
		select {
		case evt := <-c.Events():
			if err := stream.Send(wire.FromEvent(evt)); err != nil {
				reason = "send failed"
				return err
			}
		case err := <-errc:
			switch {
			case errors.Is(err, io.EOF):
				return nil
			case grpcstatus.Code(err) == codes.Unauthenticated:
				reason = "unauthenticated"
			default:
				reason = "recv failed"
			}
			return err
		case <-c.Done():
			reason = "shutdown"
			return grpcstatus.Error(codes.Unavailable, "daemon shutting down")
		}
	}
}

func (g *Gateway) readLoop(ctx context.Context, stream grpc.BidiStreamingServer[wire.ClientFrame, wire.ServerFrame], c *registry.Conn) error {
	for {
		f, err := stream.Recv()
		if err != nil {
			return err
		}
		out := g.hub.Handle(ctx, c, f.Request())
		if out.OK() {
			continue
		}
		if out.Fatal() {
			return toStatus(out.Err)
		}
		if !c.Deliver(out.Failure()) {
			g.logger.Warn("error frame dropped",
				zap.String("conn_id", c.ID),
				zap.String("op", string(out.Op)),
				zap.Error(out.Err))
		}
	}
}
