package service

import (
	"context"
	"sync"
	"time"

	"loyalty-rewards-be/internal/dto"
	"loyalty-rewards-be/internal/mapper"
	"loyalty-rewards-be/internal/pkg/logger"
	"loyalty-rewards-be/pkg/tour"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("loyalty-rewards-be/internal/service")

// MessageTourState is the websocket message type carrying a tour snapshot.
const MessageTourState = "tour_state"

// StateDelivery pushes messages to a user's connected devices.
// Implemented by the WebSocket hub.
type StateDelivery interface {
	Send(userID string, msgType string, data interface{})
}

type ITourService interface {
	State(ctx context.Context, id tour.Identity) *dto.TourStateResponse
	Tooltips(role tour.Role) []dto.TooltipResponse
	ShowTooltip(ctx context.Context, id tour.Identity, tooltipID string) *dto.TourStateResponse
	HideTooltip(ctx context.Context, id tour.Identity) *dto.TourStateResponse
	HasSeen(ctx context.Context, id tour.Identity, tooltipID string) *dto.TooltipSeenResponse
	MarkSeen(ctx context.Context, id tour.Identity, tooltipID string) *dto.TooltipSeenResponse
	StartTour(ctx context.Context, id tour.Identity, steps []string) *dto.TourStateResponse
	NextStep(ctx context.Context, id tour.Identity) *dto.TourStateResponse
	Close(ctx context.Context)
}

type TourServiceOptions struct {
	Registry    *tour.Registry
	Store       tour.Store
	Scheduler   tour.Scheduler
	Observer    tour.FlagObserver
	Delivery    StateDelivery
	Logger      logger.ILogger
	RevealDelay time.Duration
	FlagTTL     time.Duration
	SessionTTL  time.Duration
}

// tourService keeps one tour controller per user. Idle sessions expire
// after SessionTTL; an expired session abandons its tour.
type tourService struct {
	opts     TourServiceOptions
	logger   logger.ILogger
	mu       sync.Mutex
	sessions *cache.Cache
}

func NewTourService(opts TourServiceOptions) ITourService {
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = time.Hour
	}

	s := &tourService{
		opts:     opts,
		logger:   opts.Logger,
		sessions: cache.New(opts.SessionTTL, time.Minute),
	}
	s.sessions.OnEvicted(func(userID string, v interface{}) {
		if ctrl, ok := v.(*tour.Controller); ok {
			s.logger.Debug("TourService", "Session evicted", map[string]interface{}{"user_id": userID})
			ctrl.Close(context.Background())
		}
	})
	return s
}

// session returns the user's controller, creating it on first use, and
// brings its identity in line with the caller's token.
func (s *tourService) session(ctx context.Context, id tour.Identity) *tour.Controller {
	s.mu.Lock()
	var ctrl *tour.Controller
	if v, found := s.sessions.Get(id.UserID); found {
		ctrl = v.(*tour.Controller)
	} else {
		ctrl = tour.NewController(tour.Options{
			Registry:    s.opts.Registry,
			Store:       s.opts.Store,
			Scheduler:   s.opts.Scheduler,
			Logger:      s.logger,
			Observer:    s.opts.Observer,
			FlagKey:     tour.FlagKey(id.UserID),
			FlagTTL:     s.opts.FlagTTL,
			RevealDelay: s.opts.RevealDelay,
		})
		userID := id.UserID
		ctrl.Subscribe(func(snap tour.Snapshot) {
			if s.opts.Delivery != nil {
				s.opts.Delivery.Send(userID, MessageTourState, mapper.SnapshotToResponse(snap))
			}
		})
		s.logger.Debug("TourService", "Session created", map[string]interface{}{"user_id": userID})
	}
	// Set again on every hit so active sessions do not expire.
	s.sessions.Set(id.UserID, ctrl, cache.DefaultExpiration)
	s.mu.Unlock()

	ctrl.SetIdentity(ctx, id)
	return ctrl
}

func (s *tourService) State(ctx context.Context, id tour.Identity) *dto.TourStateResponse {
	return mapper.SnapshotToResponse(s.session(ctx, id).Snapshot())
}

func (s *tourService) Tooltips(role tour.Role) []dto.TooltipResponse {
	return mapper.TooltipTableToResponse(s.opts.Registry.ForRole(role))
}

func (s *tourService) ShowTooltip(ctx context.Context, id tour.Identity, tooltipID string) *dto.TourStateResponse {
	ctx, span := tracer.Start(ctx, "TourService.ShowTooltip")
	defer span.End()

	ctrl := s.session(ctx, id)
	ctrl.ShowTooltip(ctx, tooltipID)
	return mapper.SnapshotToResponse(ctrl.Snapshot())
}

func (s *tourService) HideTooltip(ctx context.Context, id tour.Identity) *dto.TourStateResponse {
	ctx, span := tracer.Start(ctx, "TourService.HideTooltip")
	defer span.End()

	ctrl := s.session(ctx, id)
	ctrl.HideTooltip(ctx)
	return mapper.SnapshotToResponse(ctrl.Snapshot())
}

func (s *tourService) HasSeen(ctx context.Context, id tour.Identity, tooltipID string) *dto.TooltipSeenResponse {
	ctrl := s.session(ctx, id)
	return &dto.TooltipSeenResponse{Id: tooltipID, Seen: ctrl.HasSeenTooltip(tooltipID)}
}

func (s *tourService) MarkSeen(ctx context.Context, id tour.Identity, tooltipID string) *dto.TooltipSeenResponse {
	ctx, span := tracer.Start(ctx, "TourService.MarkSeen")
	defer span.End()

	ctrl := s.session(ctx, id)
	ctrl.MarkTooltipAsSeen(ctx, tooltipID)
	return &dto.TooltipSeenResponse{Id: tooltipID, Seen: ctrl.HasSeenTooltip(tooltipID)}
}

func (s *tourService) StartTour(ctx context.Context, id tour.Identity, steps []string) *dto.TourStateResponse {
	ctx, span := tracer.Start(ctx, "TourService.StartTour")
	defer span.End()

	ctrl := s.session(ctx, id)
	ctrl.StartTour(ctx, steps)
	return mapper.SnapshotToResponse(ctrl.Snapshot())
}

func (s *tourService) NextStep(ctx context.Context, id tour.Identity) *dto.TourStateResponse {
	ctx, span := tracer.Start(ctx, "TourService.NextStep")
	defer span.End()

	ctrl := s.session(ctx, id)
	ctrl.NextTourStep(ctx)
	return mapper.SnapshotToResponse(ctrl.Snapshot())
}

// Close ends every session. Running tours are abandoned so no flag is left
// behind to pause background refresh.
func (s *tourService) Close(ctx context.Context) {
	s.mu.Lock()
	items := s.sessions.Items()
	s.sessions.Flush()
	s.mu.Unlock()

	for _, item := range items {
		if ctrl, ok := item.Object.(*tour.Controller); ok {
			ctrl.Close(ctx)
		}
	}
}
