package api

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/matheus3301/parley/internal/chat"
	"github.com/matheus3301/parley/internal/store"
	"github.com/matheus3301/parley/internal/wire"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Presence reports stored presence so a client that connects late can learn
// who is already online. With no identities listed it returns everyone
// currently online.
func (g *Gateway) Presence(ctx context.Context, req *wire.PresenceRequest) (*wire.PresenceResponse, error) {
	if _, err := g.auth.FromIncomingContext(ctx); err != nil {
		return nil, toStatus(err)
	}
	if len(req.Identities) > store.MaxPageSize {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "at most %d identities per request", store.MaxPageSize)
	}

	var idents []store.Identity
	if len(req.Identities) == 0 {
		online, err := g.db.ListOnline(ctx)
		if err != nil {
			return nil, toStatus(fmt.Errorf("list online: %w: %v", chat.ErrPersistence, err))
		}
		idents = online
	} else {
		seen := make(map[string]bool, len(req.Identities))
		for _, id := range req.Identities {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			i, err := g.db.GetIdentity(ctx, id)
			if err != nil {
				return nil, toStatus(fmt.Errorf("identity %q: %w: %v", id, chat.ErrPersistence, err))
			}
			if i != nil {
				idents = append(idents, *i)
			}
		}
	}

	slices.SortFunc(idents, func(a, b store.Identity) int {
		if a.Online != b.Online {
			if a.Online {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})

	resp := &wire.PresenceResponse{Entries: make([]*wire.PresenceEntry, 0, len(idents))}
	for _, i := range idents {
		resp.Entries = append(resp.Entries, &wire.PresenceEntry{
			IdentityID:     i.ID,
			DisplayName:    i.DisplayName,
			Online:         i.Online,
			LastSeenUnixMs: i.LastSeen,
		})
	}
	return resp, nil
}
