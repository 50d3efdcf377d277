package services

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/cme-analysis-backend/internal/cmerr"
)

// classifyGRPC folds a provider error into the pipeline error
// taxonomy: retryable codes become transient, NotFound keeps its
// sentinel, everything else is permanent.
func classifyGRPC(op string, err error) error {
	if err == nil {
		return nil
	}
	if cmerr.IsRetryableGRPC(err) {
		return cmerr.Transient(op, err)
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
		return fmt.Errorf("%s: %w", op, cmerr.ErrNotFound)
	}
	return cmerr.Permanent(op, err)
}
