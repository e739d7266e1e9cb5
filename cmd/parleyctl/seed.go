package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/matheus3301/parley/internal/instance"
	"github.com/matheus3301/parley/internal/store"
)

// cmdSeed writes identities, rooms and memberships straight into the
// instance database. SQLite's WAL mode lets this run beside the daemon.
func cmdSeed(ctx context.Context, g *globals, args []string) {
	if len(args) == 0 {
		fatalf("usage: parleyctl seed <identity|room|member> ...")
	}
	if err := instance.EnsureDir(g.instance); err != nil {
		fatalf("%v", err)
	}
	db, err := store.Open(instance.DBPath(g.instance))
	if err != nil {
		fatalf("open store: %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		fatalf("migrate: %v", err)
	}

	switch args[0] {
	case "identity":
		err = seedIdentity(ctx, db, args[1:])
	case "room":
		err = seedRoom(ctx, db, args[1:])
	case "member":
		err = seedMember(ctx, db, args[1:])
	default:
		err = fmt.Errorf("unknown seed target: %s", args[0])
	}
	if err != nil {
		fatalf("%v", err)
	}
}

func seedIdentity(ctx context.Context, db *store.DB, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: parleyctl seed identity <id> [display name]")
	}
	name := strings.Join(args[1:], " ")
	if name == "" {
		name = args[0]
	}
	if err := db.UpsertIdentity(ctx, &store.Identity{ID: args[0], DisplayName: name}); err != nil {
		return err
	}
	fmt.Printf("identity %s (%s)\n", args[0], name)
	return nil
}

func seedRoom(ctx context.Context, db *store.DB, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: parleyctl seed room <name> <creator> [member]...")
	}
	members := args[1:]
	for _, id := range members {
		ident, err := db.GetIdentity(ctx, id)
		if err != nil {
			return err
		}
		if ident == nil {
			return fmt.Errorf("unknown identity %q; seed it first", id)
		}
	}

	r := &store.Room{Name: args[0], CreatedBy: members[0], IsGroup: len(members) > 2, Active: true}
	if err := db.CreateRoom(ctx, r); err != nil {
		return err
	}
	for _, id := range members {
		if err := db.AddRoomMember(ctx, id, r.ID); err != nil {
			return err
		}
	}
	fmt.Printf("room #%d %s with %s\n", r.ID, r.Name, strings.Join(members, ", "))
	return nil
}

func seedMember(ctx context.Context, db *store.DB, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: parleyctl seed member <room id> <identity> [off]")
	}
	roomID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("room id: %w", err)
	}
	room, err := db.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return fmt.Errorf("room #%d does not exist", roomID)
	}

	if len(args) > 2 && args[2] == "off" {
		if err := db.SetMembershipActive(ctx, args[1], roomID, false); err != nil {
			return err
		}
		fmt.Printf("%s deactivated in #%d\n", args[1], roomID)
		return nil
	}
	if err := db.AddRoomMember(ctx, args[1], roomID); err != nil {
		return err
	}
	fmt.Printf("%s active in #%d %s\n", args[1], roomID, room.Name)
	return nil
}
