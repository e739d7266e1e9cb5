package client

import (
	"context"
	"fmt"

	"github.com/matheus3301/parley/internal/auth"
	"github.com/matheus3301/parley/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps a gRPC connection to the daemon.
type Client struct {
	conn    *grpc.ClientConn
	token   string
	Gateway wire.GatewayClient
}

// New dials the daemon at addr, either host:port or unix:///path. token,
// when set, is attached to every authenticated call made through Auth.
func New(addr, token string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{
		conn:    conn,
		token:   token,
		Gateway: wire.NewGatewayClient(conn),
	}, nil
}

// Auth returns ctx carrying the client's bearer token.
func (c *Client) Auth(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return auth.WithToken(ctx, c.token)
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
