package api

import (
	"errors"

	"github.com/matheus3301/parley/internal/chat"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps core errors onto gRPC status codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, chat.ErrNotAuthenticated):
		code = codes.Unauthenticated
	case errors.Is(err, chat.ErrUnknownParticipant), errors.Is(err, chat.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, chat.ErrInvalidMessage), errors.Is(err, chat.ErrInvalidOperation):
		code = codes.InvalidArgument
	case errors.Is(err, chat.ErrPersistence):
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return grpcstatus.Error(code, err.Error())
}
