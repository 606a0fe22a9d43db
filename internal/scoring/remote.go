package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"

	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/metrics"
	"github.com/oggyb/muzz-matching/internal/rpc"
)

const (
	ServiceName = "scoring.v1.ScoringService"
	MethodScore = "CalculateCompatibility"
)

// ScoreRequest is the wire shape of a remote scoring call.
type ScoreRequest struct {
	Version string          `json:"version"`
	UserA   *domain.Profile `json:"user_a"`
	UserB   *domain.Profile `json:"user_b"`
}

// Remote delegates scoring to an out-of-process ScoringService.
// Slow, failing or nonsensical replies degrade to the local strategy.
type Remote struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
	local   Scorer
	log     *slog.Logger
}

func NewRemote(conn grpc.ClientConnInterface, timeout time.Duration, local Scorer, log *slog.Logger) *Remote {
	if log == nil {
		log = slog.Default()
	}
	return &Remote{conn: conn, timeout: timeout, local: local, log: log.With("component", "remote_scorer")}
}

// Version reports the local strategy's version so cache keys stay stable
// whichever side computed the score.
func (r *Remote) Version() string { return r.local.Version() }

func (r *Remote) Score(ctx context.Context, a, b *domain.Profile) (Result, error) {
	if a == nil || b == nil {
		return Result{}, ErrNilProfile
	}

	res, err := r.call(ctx, a, b)
	if err == nil {
		return res, nil
	}

	metrics.RemoteScorerFallbacks.Inc()
	r.log.Warn("remote scoring failed, using local scorer", "user_a", a.UserID, "user_b", b.UserID, "err", err)
	return r.local.Score(ctx, a, b)
}

func (r *Remote) call(ctx context.Context, a, b *domain.Profile) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var res Result
	req := ScoreRequest{Version: r.Version(), UserA: a, UserB: b}
	if err := rpc.Invoke(callCtx, r.conn, "/"+ServiceName+"/"+MethodScore, req, &res); err != nil {
		return Result{}, err
	}
	if res.Total < 0 || res.Total > 100 {
		return Result{}, fmt.Errorf("remote score %.1f out of range", res.Total)
	}
	res.Version = r.Version()
	return res, nil
}
