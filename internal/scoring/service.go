package scoring

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oggyb/muzz-matching/internal/rpc"
)

// ScoringServer is the server side of ScoringService.
type ScoringServer interface {
	CalculateCompatibility(ctx context.Context, req *ScoreRequest) (*Result, error)
}

// ServiceDesc exposes a local Scorer as ScoringService so other engine
// instances can point their remote scorer at this one.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ScoringServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, MethodScore, ScoringServer.CalculateCompatibility),
	},
}

// Server adapts a Scorer to ScoringServer.
type Server struct {
	Scorer Scorer
}

func (s Server) CalculateCompatibility(ctx context.Context, req *ScoreRequest) (*Result, error) {
	if req.UserA == nil || req.UserB == nil {
		return nil, status.Error(codes.InvalidArgument, "user_a and user_b are required")
	}
	res, err := s.Scorer.Score(ctx, req.UserA, req.UserB)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &res, nil
}

// Register attaches the scoring service to a gRPC server.
func (s Server) Register(reg *grpc.Server) {
	reg.RegisterService(&ServiceDesc, s)
}
