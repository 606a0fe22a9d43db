// Package matching serves the engine's client API as matching.v1.MatchingService.
package matching

import (
	"context"
	"log/slog"
	"slices"

	"google.golang.org/grpc"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/choice"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/quota"
	"github.com/oggyb/muzz-matching/internal/rpc"
	"github.com/oggyb/muzz-matching/internal/scoring"
)

const ServiceName = "matching.v1.MatchingService"

// MatchingServer is the server side of MatchingService.
type MatchingServer interface {
	GetDailySelection(ctx context.Context, req *UserRequest) (*DailySelectionResponse, error)
	ChooseProfile(ctx context.Context, req *ChooseRequest) (*ChooseResponse, error)
	GetQuotaStatus(ctx context.Context, req *UserRequest) (*QuotaStatusResponse, error)
	GetChoiceHistory(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error)
	ListPendingLikes(ctx context.Context, req *PageRequest) (*PendingLikesResponse, error)
	ListMatches(ctx context.Context, req *PageRequest) (*MatchesResponse, error)
	Unmatch(ctx context.Context, req *UnmatchRequest) (*UnmatchResponse, error)
	GetCompatibility(ctx context.Context, req *CompatibilityRequest) (*CompatibilityResponse, error)
	BatchCompatibility(ctx context.Context, req *BatchCompatibilityRequest) (*BatchCompatibilityResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchingServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "GetDailySelection", MatchingServer.GetDailySelection),
		rpc.Unary(ServiceName, "ChooseProfile", MatchingServer.ChooseProfile),
		rpc.Unary(ServiceName, "GetQuotaStatus", MatchingServer.GetQuotaStatus),
		rpc.Unary(ServiceName, "GetChoiceHistory", MatchingServer.GetChoiceHistory),
		rpc.Unary(ServiceName, "ListPendingLikes", MatchingServer.ListPendingLikes),
		rpc.Unary(ServiceName, "ListMatches", MatchingServer.ListMatches),
		rpc.Unary(ServiceName, "Unmatch", MatchingServer.Unmatch),
		rpc.Unary(ServiceName, "GetCompatibility", MatchingServer.GetCompatibility),
		rpc.Unary(ServiceName, "BatchCompatibility", MatchingServer.BatchCompatibility),
	},
}

// Service implements MatchingService on top of the engine in AppContext.
type Service struct {
	appCtx *app.AppContext
	log    *slog.Logger
}

func NewMatchingService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx, log: appCtx.Logger.With("component", "matching_service")}
}

// fail logs err at a level matching its kind and maps it to a status error.
func (s *Service) fail(method string, err error, args ...any) error {
	args = append(args, "method", method, "err", err)
	if domain.IsClientError(err) {
		s.log.Debug("request rejected", args...)
	} else {
		s.log.Error("request failed", args...)
	}
	return svcErr.Map(err)
}

// GetDailySelection returns today's candidates, generating them on first access.
//
// Behavior:
//   - Candidates keep their stored rank order and carry their score.
//   - An empty selection is a normal answer with an explanatory message.
//   - The quota snapshot reflects choices already made today.
func (s *Service) GetDailySelection(ctx context.Context, req *UserRequest) (*DailySelectionResponse, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	s.log.Debug("GetDailySelection called", "user_id", req.UserID)

	sel, err := s.appCtx.Generator.Generate(ctx, req.UserID)
	if err != nil {
		return nil, s.fail("GetDailySelection", err, "user_id", req.UserID)
	}

	profiles, err := s.appCtx.Profiles.GetMany(ctx, sel.SelectedProfileIDs)
	if err != nil {
		return nil, s.fail("GetDailySelection", err, "user_id", req.UserID)
	}

	resp := &DailySelectionResponse{
		SelectionID: sel.ID,
		Date:        sel.SelectionDate,
		Candidates:  make([]Candidate, 0, len(sel.SelectedProfileIDs)),
		Quota:       quota.SnapshotOf(sel, s.appCtx.Clock.Now()),
	}
	for i, id := range sel.SelectedProfileIDs {
		c := Candidate{UserID: id, Rank: i + 1, Chosen: sel.HasChosen(id)}
		if i < len(sel.Scores) {
			c.Score = sel.Scores[i]
		}
		if p, ok := profiles[id]; ok {
			c.Age, c.Gender, c.Interests = p.Age, p.Gender, p.Interests
		}
		resp.Candidates = append(resp.Candidates, c)
	}
	if len(resp.Candidates) == 0 {
		resp.Message = domain.ErrNoCandidatesAvailable.Message
	}
	return resp, nil
}

// ChooseProfile submits a like or pass on one of today's candidates.
func (s *Service) ChooseProfile(ctx context.Context, req *ChooseRequest) (*ChooseResponse, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	kind, err := domain.ParseChoiceType(req.Choice)
	if err != nil {
		return nil, svcErr.InvalidArgument("choice must be like or pass")
	}

	res, err := s.appCtx.Choices.Choose(ctx, req.UserID, req.TargetUserID, kind)
	if err != nil {
		return nil, s.fail("ChooseProfile", err, "user_id", req.UserID, "target_user_id", req.TargetUserID)
	}
	return &ChooseResponse{
		IsMatch:          res.IsMatch,
		PairingID:        res.PairingID,
		ChoicesRemaining: res.ChoicesRemaining,
		CanContinue:      res.CanContinue,
		Tier:             res.Tier,
		ResetsAt:         res.ResetsAt,
	}, nil
}

func (s *Service) GetQuotaStatus(ctx context.Context, req *UserRequest) (*QuotaStatusResponse, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	snap, err := s.appCtx.Enforcer.Status(ctx, req.UserID)
	if err != nil {
		return nil, s.fail("GetQuotaStatus", err, "user_id", req.UserID)
	}
	return &QuotaStatusResponse{Snapshot: snap, CanContinue: snap.CanContinue()}, nil
}

// GetChoiceHistory returns past choices oldest first, optionally limited to [from, to).
func (s *Service) GetChoiceHistory(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	q := choice.HistoryQuery{PageToken: req.PageToken, Limit: req.Limit}
	if req.From != nil {
		q.From = *req.From
	}
	if req.To != nil {
		q.To = *req.To
	}
	if !q.From.IsZero() && !q.To.IsZero() && !q.To.After(q.From) {
		return nil, svcErr.InvalidArgument("to must be after from")
	}

	entries, next, err := s.appCtx.Choices.History(ctx, req.UserID, q)
	if err != nil {
		return nil, s.fail("GetChoiceHistory", err, "user_id", req.UserID)
	}
	return &HistoryResponse{Entries: entries, NextPageToken: next}, nil
}

// ListPendingLikes returns users who liked the caller and await an answer.
func (s *Service) ListPendingLikes(ctx context.Context, req *PageRequest) (*PendingLikesResponse, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	likes, next, err := s.appCtx.Choices.PendingLikes(ctx, req.UserID, req.PageToken, req.Limit)
	if err != nil {
		return nil, s.fail("ListPendingLikes", err, "user_id", req.UserID)
	}
	return &PendingLikesResponse{Likes: likes, NextPageToken: next}, nil
}

func (s *Service) ListMatches(ctx context.Context, req *PageRequest) (*MatchesResponse, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	matches, next, err := s.appCtx.Choices.Matches(ctx, req.UserID, req.PageToken, req.Limit)
	if err != nil {
		return nil, s.fail("ListMatches", err, "user_id", req.UserID)
	}
	return &MatchesResponse{Matches: matches, NextPageToken: next}, nil
}

func (s *Service) Unmatch(ctx context.Context, req *UnmatchRequest) (*UnmatchResponse, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	if err := s.appCtx.Choices.Unmatch(ctx, req.UserID, req.PairingID); err != nil {
		return nil, s.fail("Unmatch", err, "user_id", req.UserID, "pairing_id", req.PairingID)
	}
	return &UnmatchResponse{Removed: true}, nil
}

// GetCompatibility scores two users on demand through the cached scorer.
func (s *Service) GetCompatibility(ctx context.Context, req *CompatibilityRequest) (*CompatibilityResponse, error) {
	if err := check(req); err != nil {
		return nil, err
	}

	me, err := s.appCtx.Profiles.Get(ctx, req.UserID)
	if err != nil {
		return nil, s.fail("GetCompatibility", err, "user_id", req.UserID)
	}
	other, err := s.appCtx.Profiles.Get(ctx, req.TargetUserID)
	if err != nil {
		return nil, s.fail("GetCompatibility", err, "target_user_id", req.TargetUserID)
	}

	res, err := s.appCtx.Scorer.Score(ctx, me, other)
	if err != nil {
		return nil, s.fail("GetCompatibility", err, "user_id", req.UserID, "target_user_id", req.TargetUserID)
	}
	return &CompatibilityResponse{
		Total:           res.Total,
		Breakdown:       res.Breakdown,
		SharedInterests: res.SharedInterests,
		Version:         res.Version,
		Reasons:         scoring.Reasons(res),
	}, nil
}

// BatchCompatibility scores one user against many targets and ranks them.
//
// Behavior:
//   - Duplicate target ids are scored once.
//   - Targets without a profile, or whose score cannot be computed, are
//     reported in Missing instead of failing the call.
//   - The caller's own profile must exist.
func (s *Service) BatchCompatibility(ctx context.Context, req *BatchCompatibilityRequest) (*BatchCompatibilityResponse, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	if slices.Contains(req.TargetUserIDs, req.UserID) {
		return nil, svcErr.InvalidArgument("target_user_ids must not contain user_id")
	}

	me, err := s.appCtx.Profiles.Get(ctx, req.UserID)
	if err != nil {
		return nil, s.fail("BatchCompatibility", err, "user_id", req.UserID)
	}

	ids := slices.Compact(slices.Sorted(slices.Values(req.TargetUserIDs)))
	found, err := s.appCtx.Profiles.GetMany(ctx, ids)
	if err != nil {
		return nil, s.fail("BatchCompatibility", err, "user_id", req.UserID)
	}
	targets := make([]*domain.Profile, 0, len(found))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			targets = append(targets, p)
		}
	}

	ranked, err := s.appCtx.Generator.Rank(ctx, me, targets)
	if err != nil {
		return nil, s.fail("BatchCompatibility", err, "user_id", req.UserID)
	}

	resp := &BatchCompatibilityResponse{
		Version: s.appCtx.Scorer.Version(),
		Results: make([]ScoredTarget, 0, len(ranked)),
	}
	scored := make(map[uint64]bool, len(ranked))
	for i, r := range ranked {
		scored[r.Profile.UserID] = true
		resp.Results = append(resp.Results, ScoredTarget{
			UserID:          r.Profile.UserID,
			Rank:            i + 1,
			Total:           r.Result.Total,
			Breakdown:       r.Result.Breakdown,
			SharedInterests: r.Result.SharedInterests,
			Reasons:         scoring.Reasons(r.Result),
		})
	}
	for _, id := range ids {
		if !scored[id] {
			resp.Missing = append(resp.Missing, id)
		}
	}
	return resp, nil
}
