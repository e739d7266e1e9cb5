package api

import (
	"context"
	"fmt"

	"github.com/matheus3301/parley/internal/chat"
	"github.com/matheus3301/parley/internal/store"
	"github.com/matheus3301/parley/internal/wire"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// History returns one page of the caller's direct conversation with another
// identity, or of a room the caller actively belongs to. Deleted messages
// are never listed.
func (g *Gateway) History(ctx context.Context, req *wire.HistoryRequest) (*wire.HistoryResponse, error) {
	me, err := g.auth.FromIncomingContext(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	if (req.With == "") == (req.RoomID == 0) {
		return nil, grpcstatus.Error(codes.InvalidArgument, "exactly one of with and room_id is required")
	}

	var msgs []store.Message
	if req.RoomID != 0 {
		ok, err := g.db.IsActiveRoomMember(ctx, me, req.RoomID)
		if err != nil {
			return nil, toStatus(fmt.Errorf("membership check: %w: %v", chat.ErrPersistence, err))
		}
		if !ok {
			return nil, toStatus(fmt.Errorf("room %d: %w", req.RoomID, chat.ErrNotFound))
		}
		msgs, err = g.db.ListRoomMessages(ctx, req.RoomID, req.BeforeID, req.Limit)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "list room messages: %v", err)
		}
	} else {
		peer, err := g.db.GetIdentity(ctx, req.With)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "get identity: %v", err)
		}
		if peer == nil {
			return nil, toStatus(fmt.Errorf("identity %s: %w", req.With, chat.ErrUnknownParticipant))
		}
		msgs, err = g.db.ListDirectMessages(ctx, me, req.With, req.BeforeID, req.Limit)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "list direct messages: %v", err)
		}
	}

	names := make(map[string]string)
	resp := &wire.HistoryResponse{Messages: make([]*wire.MessageFrame, 0, len(msgs))}
	for i := range msgs {
		m := &msgs[i]
		name, seen := names[m.SenderID]
		if !seen {
			if ident, err := g.db.GetIdentity(ctx, m.SenderID); err == nil && ident != nil {
				name = ident.DisplayName
			}
			names[m.SenderID] = name
		}
		resp.Messages = append(resp.Messages, wire.MessageFromStore(m, name))
	}
	if len(msgs) > 0 && len(msgs) == store.PageSize(req.Limit) {
		resp.NextBeforeID = msgs[len(msgs)-1].ID
	}
	return resp, nil
}
