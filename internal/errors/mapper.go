// Package errors turns engine errors into gRPC status errors.
package errors

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

// Domain is the ErrorInfo domain attached to client-facing errors.
const Domain = "matching.muzz"

var codeByDomain = map[domain.Code]codes.Code{
	domain.CodeProfileIncomplete:     codes.FailedPrecondition,
	domain.CodeNoCandidatesAvailable: codes.NotFound,
	domain.CodeSelectionNotFound:     codes.FailedPrecondition,
	domain.CodeTargetNotInSelection:  codes.InvalidArgument,
	domain.CodeQuotaExceeded:         codes.ResourceExhausted,
	domain.CodeAlreadyChosenToday:    codes.AlreadyExists,
	domain.CodePairingNotFound:       codes.NotFound,
	domain.CodeProfileNotFound:       codes.NotFound,
}

// Map converts domain, repository and context errors into gRPC status errors.
//
// Client-facing domain errors keep their message and carry the code as
// ErrorInfo.Reason so clients can branch without parsing text.
func Map(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var de *domain.Error
	if errors.As(err, &de) {
		c, ok := codeByDomain[de.Code]
		if !ok {
			c = codes.FailedPrecondition
		}
		return withReason(c, de.Message, string(de.Code))
	}

	switch {
	case errors.Is(err, pagination.ErrInvalidToken):
		return status.Error(codes.InvalidArgument, "invalid page_token")

	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// InvalidArgument creates a gRPC InvalidArgument error.
func InvalidArgument(msg string) error {
	return withReason(codes.InvalidArgument, msg, "INVALID_ARGUMENT")
}

// Reason extracts the ErrorInfo reason from a status error, or "".
func Reason(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}

func withReason(c codes.Code, msg, reason string) error {
	st := status.New(c, msg)
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: Domain})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}
