package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	"livecast/pkg/utils"

	"go.uber.org/zap"
)

type ctxKey string

// CtxKeyAdmin marks the request as carrying the admin capability; admins
// may mutate streams they do not own.
const CtxKeyAdmin ctxKey = "is_admin"

// LifecycleConfig carries the tunables of the lifecycle manager.
type LifecycleConfig struct {
	TokenTTL      time.Duration
	SessionTTL    time.Duration
	ChannelPrefix string
}

type lifecycleService struct {
	streams   ports.StreamRepository
	sessions  ports.SessionCache
	plans     ports.PlanService
	guard     *ConcurrencyGuard
	tokens    ports.TokenIssuer
	recording *RecordingController
	metrics   *MetricsService
	notifier  *StreamNotifier
	logger    *zap.SugaredLogger
	cfg       LifecycleConfig
}

// NewLifecycleService builds the stream lifecycle manager. It is the only
// writer of stream status; every other component goes through it.
func NewLifecycleService(
	streams ports.StreamRepository,
	sessions ports.SessionCache,
	plans ports.PlanService,
	guard *ConcurrencyGuard,
	tokens ports.TokenIssuer,
	recording *RecordingController,
	metrics *MetricsService,
	notifier *StreamNotifier,
	logger *zap.SugaredLogger,
	cfg LifecycleConfig,
) ports.Lifecycle {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	return &lifecycleService{
		streams:   streams,
		sessions:  sessions,
		plans:     plans,
		guard:     guard,
		tokens:    tokens,
		recording: recording,
		metrics:   metrics,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

func (s *lifecycleService) Create(ctx context.Context, ownerID domain.UserID, spec domain.StreamSpec) (*domain.Stream, error) {
	if spec.Visibility == "" {
		spec.Visibility = domain.VisibilityPublic
	}
	if !spec.Visibility.Valid() {
		return nil, fmt.Errorf("unknown visibility %q", spec.Visibility)
	}
	if spec.MaxViewers < 0 {
		return nil, fmt.Errorf("max viewers must be >= 0")
	}

	// Premium visibility, recording and paid ticketing are all gated on
	// the owner's entitlement.
	if spec.Visibility == domain.VisibilityPremium || spec.EnableRecording || spec.TicketPriceCents > 0 {
		premium, err := s.plans.IsPremium(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve entitlement: %w", err)
		}
		if !premium {
			return nil, domain.ErrPermissionDenied
		}
	}

	if err := s.guard.CheckCreateAllowed(ctx, ownerID); err != nil {
		return nil, err
	}

	var passwordHash string
	if spec.Password != "" {
		hash, err := domain.HashPassword(spec.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		passwordHash = hash
	}

	now := time.Now()
	stream := &domain.Stream{
		ID:               domain.StreamID(utils.GenerateStreamID()),
		ChannelName:      s.tokens.GenerateChannelName(s.cfg.ChannelPrefix),
		BroadcasterUID:   s.tokens.GenerateUID(),
		OwnerID:          ownerID,
		Title:            spec.Title,
		Visibility:       spec.Visibility,
		PasswordHash:     passwordHash,
		AllowCoHosts:     spec.AllowCoHosts,
		CoHosts:          spec.CoHosts,
		MaxViewers:       spec.MaxViewers,
		CurrentViewers:   0,
		EnableChat:       spec.EnableChat,
		EnableRecording:  spec.EnableRecording,
		TicketPriceCents: spec.TicketPriceCents,
		RecordingStatus:  domain.RecordingNone,
		ScheduledStart:   spec.ScheduledStart,
		ScheduledEnd:     spec.ScheduledEnd,
		Status:           domain.StatusPreparing,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.streams.Create(ctx, stream); err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	s.metrics.StreamCreated()
	s.logger.Infow("stream created",
		"stream_id", stream.ID,
		"owner_id", ownerID,
		"channel", stream.ChannelName,
		"visibility", stream.Visibility,
	)
	return stream, nil
}

func (s *lifecycleService) Get(ctx context.Context, id domain.StreamID) (*domain.Stream, error) {
	return s.streams.GetByID(ctx, id)
}

func (s *lifecycleService) ListByOwner(ctx context.Context, ownerID domain.UserID) ([]*domain.Stream, error) {
	return s.streams.ListByOwner(ctx, ownerID)
}

func (s *lifecycleService) Start(ctx context.Context, id domain.StreamID, callerID domain.UserID) (*domain.Stream, error) {
	stream, err := s.getAuthorized(ctx, id, callerID)
	if err != nil {
		return nil, err
	}

	// The CAS is the concurrency gate: of two racing start calls only the
	// one that observes preparing wins.
	ok, err := s.streams.CompareAndSwapStatus(ctx, id, domain.StatusPreparing, domain.StatusLive)
	if err != nil {
		return nil, fmt.Errorf("failed to transition stream to live: %w", err)
	}
	if !ok {
		return nil, domain.ErrInvalidState
	}

	stream, err = s.streams.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	stream.ActualStart = &now
	stream.UpdatedAt = now

	if stream.EnableRecording {
		resourceID, sessionID, recErr := s.recording.StartRecording(ctx, stream)
		if recErr != nil {
			// The stream still goes live; recording is best-effort.
			s.metrics.RecordingFailure()
			s.logger.Warnw("stream going live without recording",
				"stream_id", stream.ID,
				"channel", stream.ChannelName,
			)
		} else {
			stream.RecordingStatus = domain.RecordingActive
			stream.RecordingResourceID = resourceID
			stream.RecordingSessionID = sessionID
		}
	}

	if err := s.streams.Update(ctx, stream); err != nil {
		if errors.Is(err, domain.ErrStreamModified) {
			// A racing transition committed while recording was being
			// set up; the committed status wins. Stop the recording this
			// call started so it does not outlive the stream.
			if stream.RecordingStatus == domain.RecordingActive {
				if _, recErr := s.recording.StopRecording(ctx, stream); recErr != nil {
					s.metrics.RecordingFailure()
				}
			}
			s.logger.Warnw("stream transitioned during start",
				"stream_id", id,
				"channel", stream.ChannelName,
			)
			return s.streams.GetByID(ctx, id)
		}
		return nil, fmt.Errorf("failed to persist live stream: %w", err)
	}

	s.metrics.Transition(domain.StatusLive)
	s.logger.Infow("stream started", "stream_id", stream.ID, "channel", stream.ChannelName)
	return stream, nil
}

func (s *lifecycleService) End(ctx context.Context, id domain.StreamID, callerID domain.UserID) (*domain.Stream, error) {
	stream, err := s.getAuthorized(ctx, id, callerID)
	if err != nil {
		return nil, err
	}

	// ended is reachable from live and, for streams cancelled before
	// going live, from preparing.
	ok, err := s.streams.CompareAndSwapStatus(ctx, id, domain.StatusLive, domain.StatusEnded)
	if err != nil {
		return nil, fmt.Errorf("failed to transition stream to ended: %w", err)
	}
	if !ok {
		ok, err = s.streams.CompareAndSwapStatus(ctx, id, domain.StatusPreparing, domain.StatusEnded)
		if err != nil {
			return nil, fmt.Errorf("failed to transition stream to ended: %w", err)
		}
	}
	if !ok {
		return nil, domain.ErrInvalidState
	}

	stream, err = s.streams.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if stream.RecordingStatus == domain.RecordingActive {
		files, recErr := s.recording.StopRecording(ctx, stream)
		if recErr != nil {
			s.metrics.RecordingFailure()
		}
		stream.RecordingStatus = domain.RecordingStopped
		stream.RecordingFiles = files
		stream.RecordingResourceID = ""
		stream.RecordingSessionID = ""
	}

	now := time.Now()
	stream.ActualEnd = &now
	stream.CurrentViewers = 0
	stream.UpdatedAt = now

	if err := s.streams.Update(ctx, stream); err != nil {
		return nil, fmt.Errorf("failed to persist ended stream: %w", err)
	}
	if err := s.streams.SetViewers(ctx, id, 0); err != nil {
		s.logger.Warnw("failed to reset viewer counter", "stream_id", id, "error", err)
	}

	// The status transition is already committed; a failed purge only
	// delays cleanup until the cache TTL expires the entries.
	if err := s.sessions.DeleteAll(ctx, id); err != nil {
		s.logger.Warnw("failed to purge sessions for ended stream", "stream_id", id, "error", err)
	}

	s.metrics.Transition(domain.StatusEnded)
	s.metrics.SetStreamViewers(id, 0)
	s.notifier.streamEnded(id)
	s.logger.Infow("stream ended", "stream_id", stream.ID, "channel", stream.ChannelName)
	return stream, nil
}

func (s *lifecycleService) Update(ctx context.Context, id domain.StreamID, callerID domain.UserID, patch domain.StreamPatch) (*domain.Stream, error) {
	stream, err := s.getAuthorized(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	if stream.Status == domain.StatusLive {
		return nil, domain.ErrInvalidState
	}

	// Entitlement is re-checked before any field is touched so a rejected
	// update leaves the stream unchanged.
	needsPremium := false
	if patch.Visibility != nil && *patch.Visibility == domain.VisibilityPremium && stream.Visibility != domain.VisibilityPremium {
		needsPremium = true
	}
	if patch.EnableRecording != nil && *patch.EnableRecording && !stream.EnableRecording {
		needsPremium = true
	}
	if patch.TicketPriceCents != nil && *patch.TicketPriceCents > 0 && stream.TicketPriceCents == 0 {
		needsPremium = true
	}
	if needsPremium {
		premium, err := s.plans.IsPremium(ctx, stream.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve entitlement: %w", err)
		}
		if !premium {
			return nil, domain.ErrPermissionDenied
		}
	}

	if patch.Visibility != nil && !patch.Visibility.Valid() {
		return nil, fmt.Errorf("unknown visibility %q", *patch.Visibility)
	}
	if patch.MaxViewers != nil && *patch.MaxViewers < 0 {
		return nil, fmt.Errorf("max viewers must be >= 0")
	}

	if patch.Title != nil {
		stream.Title = *patch.Title
	}
	if patch.Visibility != nil {
		stream.Visibility = *patch.Visibility
	}
	if patch.Password != nil {
		if *patch.Password == "" {
			stream.PasswordHash = ""
		} else {
			hash, err := domain.HashPassword(*patch.Password)
			if err != nil {
				return nil, fmt.Errorf("failed to hash password: %w", err)
			}
			stream.PasswordHash = hash
		}
	}
	if patch.AllowCoHosts != nil {
		stream.AllowCoHosts = *patch.AllowCoHosts
	}
	if patch.CoHosts != nil {
		stream.CoHosts = *patch.CoHosts
	}
	if patch.MaxViewers != nil {
		stream.MaxViewers = *patch.MaxViewers
	}
	if patch.EnableChat != nil {
		stream.EnableChat = *patch.EnableChat
	}
	if patch.EnableRecording != nil {
		stream.EnableRecording = *patch.EnableRecording
	}
	if patch.TicketPriceCents != nil {
		stream.TicketPriceCents = *patch.TicketPriceCents
	}
	if patch.ScheduledStart != nil {
		stream.ScheduledStart = patch.ScheduledStart
	}
	if patch.ScheduledEnd != nil {
		stream.ScheduledEnd = patch.ScheduledEnd
	}
	stream.UpdatedAt = time.Now()

	if err := s.streams.Update(ctx, stream); err != nil {
		if errors.Is(err, domain.ErrStreamModified) {
			// The stream transitioned between the read and the write;
			// the caller re-reads and decides whether to retry.
			return nil, domain.ErrInvalidState
		}
		return nil, fmt.Errorf("failed to update stream: %w", err)
	}
	return stream, nil
}

func (s *lifecycleService) Delete(ctx context.Context, id domain.StreamID, callerID domain.UserID) error {
	stream, err := s.getAuthorized(ctx, id, callerID)
	if err != nil {
		return err
	}
	if stream.Status == domain.StatusLive {
		return domain.ErrInvalidState
	}

	if stream.RecordingStatus == domain.RecordingActive {
		if _, recErr := s.recording.StopRecording(ctx, stream); recErr != nil {
			s.metrics.RecordingFailure()
		}
	}

	if err := s.sessions.DeleteAll(ctx, id); err != nil {
		s.logger.Warnw("failed to purge sessions for deleted stream", "stream_id", id, "error", err)
	}

	if err := s.streams.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete stream: %w", err)
	}

	s.metrics.DropStream(id)
	s.notifier.streamEnded(id)
	s.logger.Infow("stream deleted", "stream_id", id, "owner_id", stream.OwnerID)
	return nil
}

func (s *lifecycleService) Join(ctx context.Context, id domain.StreamID, callerID domain.UserID, req domain.JoinRequest) (*domain.JoinGrant, error) {
	stream, err := s.streams.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if callerID != stream.OwnerID {
		if err := s.checkAccess(ctx, stream, callerID, req); err != nil {
			s.metrics.JoinRejected(rejectionReason(err))
			return nil, err
		}
	}

	if !stream.Joinable() {
		s.metrics.JoinRejected(rejectionReason(domain.ErrInvalidState))
		return nil, domain.ErrInvalidState
	}

	role, uid := s.resolveRole(stream, callerID, req)

	if err := s.guard.CheckJoinAllowed(ctx, stream, role); err != nil {
		s.metrics.JoinRejected(rejectionReason(err))
		return nil, err
	}

	rtcToken, err := s.tokens.IssueRTC(stream.ChannelName, uid, role, s.cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue rtc token: %w", err)
	}
	rtmToken, err := s.tokens.IssueRTM(string(callerID), s.cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue rtm token: %w", err)
	}

	// The owner's own join never counts against the viewer cap.
	if role == domain.RoleSubscriber {
		count, err := s.streams.IncrViewers(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to increment viewer count: %w", err)
		}
		stream.CurrentViewers = count
		s.metrics.SetStreamViewers(id, count)
	}

	session := &domain.Session{
		StreamID: id,
		UserID:   callerID,
		UID:      uid,
		Role:     role,
		JoinedAt: time.Now(),
	}
	if err := s.sessions.Put(ctx, session, s.cfg.SessionTTL); err != nil {
		if role == domain.RoleSubscriber {
			if _, derr := s.streams.DecrViewers(ctx, id); derr != nil {
				s.logger.Warnw("failed to roll back viewer count", "stream_id", id, "error", derr)
			}
		}
		return nil, fmt.Errorf("failed to record session: %w", err)
	}

	s.metrics.Join()
	s.logger.Infow("participant joined",
		"stream_id", id,
		"user_id", callerID,
		"role", role,
		"uid", uid,
	)
	return &domain.JoinGrant{
		Stream:   stream,
		UID:      uid,
		Role:     role,
		RTCToken: rtcToken,
		RTMToken: rtmToken,
	}, nil
}

func (s *lifecycleService) Leave(ctx context.Context, id domain.StreamID, callerID domain.UserID) error {
	session, err := s.sessions.Get(ctx, id, callerID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}

	if session.Role == domain.RoleSubscriber {
		count, err := s.streams.DecrViewers(ctx, id)
		if err != nil {
			s.logger.Warnw("failed to decrement viewer count", "stream_id", id, "error", err)
		} else {
			s.metrics.SetStreamViewers(id, count)
		}
	}

	if err := s.sessions.Delete(ctx, id, callerID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.metrics.Leave()
	return nil
}

// ReconcileViewers recomputes the viewer counter from the session cache's
// live subscriber entries, healing drift left by TTL-expired sessions that
// never called leave.
func (s *lifecycleService) ReconcileViewers(ctx context.Context, id domain.StreamID) (int, error) {
	count, err := s.sessions.CountByRole(ctx, id, domain.RoleSubscriber)
	if err != nil {
		return 0, fmt.Errorf("failed to count live sessions: %w", err)
	}
	if err := s.streams.SetViewers(ctx, id, count); err != nil {
		return 0, fmt.Errorf("failed to reset viewer counter: %w", err)
	}
	s.metrics.SetStreamViewers(id, count)
	return count, nil
}

// getAuthorized loads the stream and verifies the caller may mutate it:
// the owner always may, and requests carrying the admin capability may.
func (s *lifecycleService) getAuthorized(ctx context.Context, id domain.StreamID, callerID domain.UserID) (*domain.Stream, error) {
	stream, err := s.streams.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID == stream.OwnerID {
		return stream, nil
	}
	if admin, ok := ctx.Value(CtxKeyAdmin).(bool); ok && admin {
		return stream, nil
	}
	return nil, domain.ErrPermissionDenied
}

// checkAccess evaluates the non-owner access rules in order: password,
// private, premium. Each failure maps to its own error kind so callers can
// present the right UX.
func (s *lifecycleService) checkAccess(ctx context.Context, stream *domain.Stream, callerID domain.UserID, req domain.JoinRequest) error {
	if stream.PasswordHash != "" && !stream.CheckPassword(req.Password) {
		return domain.ErrPasswordRequired
	}
	if stream.Visibility == domain.VisibilityPrivate {
		return domain.ErrPrivateAccess
	}
	if stream.Visibility == domain.VisibilityPremium {
		premium, err := s.plans.IsPremium(ctx, callerID)
		if err != nil {
			return fmt.Errorf("failed to resolve entitlement: %w", err)
		}
		if !premium {
			return domain.ErrPremiumRequired
		}
	}
	return nil
}

// resolveRole is the single decision point for participant roles. The
// owner always publishes with the fixed broadcaster uid so recordings and
// analytics correlate across reconnects.
func (s *lifecycleService) resolveRole(stream *domain.Stream, callerID domain.UserID, req domain.JoinRequest) (domain.Role, uint32) {
	switch {
	case callerID == stream.OwnerID:
		return domain.RolePublisher, stream.BroadcasterUID
	case req.AsBroadcaster && stream.AllowCoHosts && stream.IsCoHost(callerID):
		return domain.RolePublisher, s.tokens.GenerateUID()
	default:
		return domain.RoleSubscriber, s.tokens.GenerateUID()
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, domain.ErrPasswordRequired):
		return "password"
	case errors.Is(err, domain.ErrPrivateAccess):
		return "private"
	case errors.Is(err, domain.ErrPremiumRequired):
		return "premium"
	case errors.Is(err, domain.ErrInvalidState):
		return "state"
	default:
		return "other"
	}
}
