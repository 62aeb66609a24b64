package peer

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
)

var statusCodes = []struct {
	err  error
	code codes.Code
}{
	{apperror.ErrNoSuchGame, codes.NotFound},
	{apperror.ErrInvalidMove, codes.FailedPrecondition},
	{apperror.ErrMalformedInput, codes.InvalidArgument},
	{apperror.ErrGameMigrating, codes.Aborted},
	{apperror.ErrMigrationUnavailable, codes.Unavailable},
}

func toStatus(err error) error {
	for _, candidate := range statusCodes {
		if errors.Is(err, candidate.err) {
			return status.Error(candidate.code, err.Error())
		}
	}

	return status.Error(codes.Internal, err.Error())
}

// fromStatus turns a failed call into ErrPeerCallFailed, also matching the
// application error the remote reported, if any.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %w", apperror.ErrPeerCallFailed, err)
	}

	for _, candidate := range statusCodes {
		if candidate.code == st.Code() {
			return fmt.Errorf("%w: %w: %s", apperror.ErrPeerCallFailed, candidate.err, st.Message())
		}
	}

	return fmt.Errorf("%w: %s: %s", apperror.ErrPeerCallFailed, st.Code(), st.Message())
}
