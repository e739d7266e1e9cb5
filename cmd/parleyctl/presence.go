package main

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/parley/internal/wire"
)

func cmdPresence(ctx context.Context, g *globals, args []string) {
	c := g.dial(g.token())
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(c.Auth(ctx), 10*time.Second)
	defer cancel()
	resp, err := c.Gateway.Presence(ctx, &wire.PresenceRequest{Identities: args})
	if err != nil {
		fatalf("%v", err)
	}
	if g.jsonOut {
		outputJSON(resp)
		return
	}
	if len(resp.Entries) == 0 {
		fmt.Println("nobody online")
		return
	}
	for _, e := range resp.Entries {
		fmt.Println(formatPresence(e))
	}
}

func formatPresence(e *wire.PresenceEntry) string {
	name := e.IdentityID
	if e.DisplayName != "" {
		name = fmt.Sprintf("%s (%s)", e.DisplayName, e.IdentityID)
	}
	switch {
	case e.Online:
		return name + "  online"
	case e.LastSeenUnixMs > 0:
		return name + "  last seen " + time.UnixMilli(e.LastSeenUnixMs).Format(time.DateTime)
	default:
		return name + "  never seen"
	}
}
