package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/matheus3301/parley/internal/wire"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func cmdWatch(ctx context.Context, g *globals, args []string) {
	req := &wire.WatchRequest{}
	if len(args) > 0 {
		req.Namespace = args[0]
	}

	c := g.dial("")
	defer func() { _ = c.Close() }()

	stream, err := c.Gateway.WatchEvents(ctx, req)
	if err != nil {
		fatalf("%v", err)
	}
	for {
		env, err := stream.Recv()
		if errors.Is(err, io.EOF) || grpcstatus.Code(err) == codes.Canceled {
			return
		}
		if err != nil {
			fatalf("%v", err)
		}
		if g.jsonOut {
			outputJSON(env)
			continue
		}
		ts := time.UnixMilli(env.OccurredAtUnixMs).Format(time.TimeOnly)
		fmt.Printf("%s %-24s %s\n", ts, env.Kind, env.Payload)
	}
}
