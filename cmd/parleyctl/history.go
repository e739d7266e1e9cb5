package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/parley/internal/wire"
)

func cmdHistory(ctx context.Context, g *globals, args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	before := fs.Int64("before", 0, "only messages with an id below this")
	limit := fs.Int("limit", 20, "page size")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fatalf("usage: parleyctl history [--before id] [--limit n] <identity|#room>")
	}

	req := &wire.HistoryRequest{BeforeID: *before, Limit: *limit}
	target := fs.Arg(0)
	if room, ok := strings.CutPrefix(target, "#"); ok {
		id, err := strconv.ParseInt(room, 10, 64)
		if err != nil {
			fatalf("room id: %v", err)
		}
		req.RoomID = id
	} else {
		req.With = target
	}

	c := g.dial(g.token())
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	resp, err := c.Gateway.History(c.Auth(ctx), req)
	if err != nil {
		fatalf("%v", err)
	}
	if g.jsonOut {
		outputJSON(resp)
		return
	}
	if len(resp.Messages) == 0 {
		fmt.Println("No messages.")
		return
	}
	// Pages come newest first; print oldest first like a transcript.
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		fmt.Println(formatMessage(resp.Messages[i]))
	}
	if resp.NextBeforeID != 0 {
		fmt.Printf("-- more: --before %d\n", resp.NextBeforeID)
	}
}

func formatMessage(m *wire.MessageFrame) string {
	ts := time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04")
	who := m.SenderName
	if who == "" {
		who = m.SenderID
	}
	line := fmt.Sprintf("[%s] #%d %s: %s", ts, m.ID, who, m.Body)
	if m.Attachment != nil {
		line += fmt.Sprintf(" <%s %s>", m.Attachment.ContentType, m.Attachment.Path)
	}
	if m.Read {
		line += " (read)"
	}
	return line
}
