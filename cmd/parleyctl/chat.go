package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/matheus3301/parley/internal/wire"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

var errQuit = errors.New("quit")

// chatState is the interactive session's current send target.
type chatState struct {
	to   string
	room int64
	refs int
}

func (st *chatState) nextRef() string {
	st.refs++
	return "c" + strconv.Itoa(st.refs)
}

// parseLine turns one line of input into a frame. A nil frame with a nil
// error means the line only changed local state.
func (st *chatState) parseLine(line string) (*wire.ClientFrame, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	if !strings.HasPrefix(line, "/") {
		return st.message(line, nil)
	}

	cmd, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "quit", "q":
		return nil, errQuit
	case "to":
		if rest == "" {
			return nil, errors.New("usage: /to <identity>")
		}
		st.to, st.room = rest, 0
		return nil, nil
	case "join", "leave":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("usage: /%s <room id>", cmd)
		}
		if cmd == "join" {
			st.to, st.room = "", id
		} else if st.room == id {
			st.room = 0
		}
		return &wire.ClientFrame{Op: cmd + "_room", Ref: st.nextRef(), RoomID: id}, nil
	case "read", "delete":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("usage: /%s <message id>", cmd)
		}
		op := "mark_read"
		if cmd == "delete" {
			op = "delete_message"
		}
		return &wire.ClientFrame{Op: op, Ref: st.nextRef(), MessageID: id}, nil
	case "attach":
		path, caption, _ := strings.Cut(rest, " ")
		if path == "" {
			return nil, errors.New("usage: /attach <path> [caption]")
		}
		att := &wire.AttachmentFrame{Path: path, ContentType: mime.TypeByExtension(filepath.Ext(path))}
		return st.message(strings.TrimSpace(caption), att)
	default:
		return nil, fmt.Errorf("unknown command /%s", cmd)
	}
}

func (st *chatState) message(body string, att *wire.AttachmentFrame) (*wire.ClientFrame, error) {
	f := &wire.ClientFrame{Ref: st.nextRef(), Body: body, Attachment: att}
	switch {
	case st.room != 0:
		f.Op, f.RoomID = "send_room", st.room
	case st.to != "":
		f.Op, f.ReceiverID = "send_direct", st.to
	default:
		return nil, errors.New("no target; use /to <identity> or /join <room>")
	}
	return f, nil
}

func cmdChat(ctx context.Context, g *globals) {
	c := g.dial(g.token())
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := c.Gateway.Connect(c.Auth(ctx))
	if err != nil {
		fatalf("%v", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return printFrames(stream, g.jsonOut)
	})
	eg.Go(func() error {
		err := sendLines(ctx, stream, lines)
		_ = stream.CloseSend()
		return err
	})
	err = eg.Wait()
	if err != nil && !errors.Is(err, errQuit) && grpcstatus.Code(err) != codes.Canceled {
		fatalf("%v", err)
	}
}

func sendLines(ctx context.Context, stream grpc.BidiStreamingClient[wire.ClientFrame, wire.ServerFrame], lines <-chan string) error {
	st := &chatState{}
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			f, err := st.parseLine(line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			if f == nil {
				continue
			}
			if err := stream.Send(f); err != nil {
				return err
			}
		}
	}
}

func printFrames(stream grpc.BidiStreamingClient[wire.ClientFrame, wire.ServerFrame], jsonOut bool) error {
	for {
		f, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if jsonOut {
			outputJSON(f)
			continue
		}
		if line := describeFrame(f); line != "" {
			fmt.Println(line)
		}
	}
}

func describeFrame(f *wire.ServerFrame) string {
	switch f.Kind {
	case wire.KindConnected:
		return fmt.Sprintf("* connected as %s", f.IdentityID)
	case "presence_changed":
		state := "offline"
		if f.Online != nil && *f.Online {
			state = "online"
		}
		return fmt.Sprintf("* %s is %s", f.IdentityID, state)
	case "message_delivered":
		prefix := ""
		if f.Message.RoomID != 0 {
			prefix = fmt.Sprintf("#%d ", f.Message.RoomID)
		}
		return prefix + formatMessage(f.Message)
	case "send_confirmed":
		return fmt.Sprintf("* sent #%d", f.Message.ID)
	case "user_joined_room":
		return fmt.Sprintf("* %s joined #%d", f.IdentityID, f.RoomID)
	case "user_left_room":
		return fmt.Sprintf("* %s left #%d", f.IdentityID, f.RoomID)
	case "message_deleted":
		return fmt.Sprintf("* message #%d deleted", f.MessageID)
	case "error":
		return fmt.Sprintf("! %s (%s): %s", f.Error.Op, f.Error.Code, f.Error.Message)
	}
	return ""
}
