package tokens

import (
	"context"
	"errors"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/rzbill/tokenvault/pkg/log"
	"github.com/rzbill/tokenvault/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// payloadCtxKeyType prevents collisions
type payloadCtxKeyType string

var payloadCtxKey payloadCtxKeyType = "tokenvault-payload"

// ContextWithPayload stores a verified payload in ctx.
func ContextWithPayload(ctx context.Context, payload *types.TokenPayload) context.Context {
	return context.WithValue(ctx, payloadCtxKey, payload)
}

// PayloadFromContext returns the payload stored by AuthFunc.
func PayloadFromContext(ctx context.Context) (*types.TokenPayload, bool) {
	payload, ok := ctx.Value(payloadCtxKey).(*types.TokenPayload)
	return payload, ok
}

// AuthFunc authenticates gRPC requests with the bearer token from the
// authorization metadata.
func AuthFunc(m *Manager) auth.AuthFunc {
	return func(ctx context.Context) (context.Context, error) {
		token, err := auth.AuthFromMD(ctx, "bearer")
		if err != nil {
			m.logger.Warn("Missing bearer token in request")
			return nil, err
		}

		payload, err := m.Verify(ctx, token)
		if err != nil {
			m.logger.Warn("Rejected bearer token", log.Err(err))
			return nil, ToStatus(err)
		}
		return ContextWithPayload(ctx, payload), nil
	}
}

// UnaryServerInterceptor authenticates unary calls with AuthFunc.
func UnaryServerInterceptor(m *Manager) grpc.UnaryServerInterceptor {
	return auth.UnaryServerInterceptor(AuthFunc(m))
}

// StreamServerInterceptor authenticates streaming calls with AuthFunc.
func StreamServerInterceptor(m *Manager) grpc.StreamServerInterceptor {
	return auth.StreamServerInterceptor(AuthFunc(m))
}

// Code maps an error from this module to a gRPC code.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, types.ErrInvalidToken),
		errors.Is(err, types.ErrExpiredToken),
		errors.Is(err, types.ErrRevokedToken):
		return codes.Unauthenticated
	case errors.Is(err, types.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, types.ErrAlreadyExists):
		return codes.AlreadyExists
	case errors.Is(err, types.ErrConflict):
		return codes.Aborted
	case errors.Is(err, types.ErrListRestartsExhausted), types.IsTransportError(err):
		return codes.Unavailable
	case types.IsValidationError(err):
		return codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// ToStatus converts err into a gRPC status error. Errors that already carry
// a status are returned unchanged.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(Code(err), err.Error())
}

// resultLabel is the metrics result label for err.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrInvalidToken):
		return "invalid"
	case errors.Is(err, types.ErrExpiredToken):
		return "expired"
	case errors.Is(err, types.ErrRevokedToken):
		return "revoked"
	default:
		return Code(err).String()
	}
}
