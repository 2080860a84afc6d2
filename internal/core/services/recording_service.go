package services

import (
	"context"
	"fmt"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"

	"go.uber.org/zap"
)

// RecordingController wraps the cloud recording backend as a best-effort
// capability. Callers treat its errors as advisory: a stream must never
// fail a lifecycle transition because recording could not start or stop.
type RecordingController struct {
	backend ports.RecordingBackend
	logger  *zap.SugaredLogger
}

func NewRecordingController(backend ports.RecordingBackend, logger *zap.SugaredLogger) *RecordingController {
	return &RecordingController{
		backend: backend,
		logger:  logger,
	}
}

// StartRecording acquires a recording resource and starts cloud-side
// recording for the stream's channel.
func (r *RecordingController) StartRecording(ctx context.Context, stream *domain.Stream) (resourceID, sessionID string, err error) {
	resourceID, err = r.backend.AcquireResource(ctx, stream.ChannelName, stream.BroadcasterUID)
	if err != nil {
		r.logger.Warnw("failed to acquire recording resource",
			"stream_id", stream.ID,
			"channel", stream.ChannelName,
			"error", err,
		)
		return "", "", fmt.Errorf("acquire recording resource: %w", err)
	}

	sessionID, err = r.backend.Start(ctx, stream.ChannelName, stream.BroadcasterUID, resourceID)
	if err != nil {
		r.logger.Warnw("failed to start recording",
			"stream_id", stream.ID,
			"channel", stream.ChannelName,
			"resource_id", resourceID,
			"error", err,
		)
		return "", "", fmt.Errorf("start recording: %w", err)
	}

	r.logger.Infow("recording started",
		"stream_id", stream.ID,
		"channel", stream.ChannelName,
		"recording_session_id", sessionID,
	)
	return resourceID, sessionID, nil
}

// StopRecording stops cloud-side recording and returns the produced files.
func (r *RecordingController) StopRecording(ctx context.Context, stream *domain.Stream) ([]domain.RecordingFile, error) {
	files, err := r.backend.Stop(ctx, stream.ChannelName, stream.BroadcasterUID, stream.RecordingResourceID, stream.RecordingSessionID)
	if err != nil {
		r.logger.Warnw("failed to stop recording",
			"stream_id", stream.ID,
			"channel", stream.ChannelName,
			"recording_session_id", stream.RecordingSessionID,
			"error", err,
		)
		return nil, fmt.Errorf("stop recording: %w", err)
	}

	r.logger.Infow("recording stopped",
		"stream_id", stream.ID,
		"channel", stream.ChannelName,
		"files", len(files),
	)
	return files, nil
}
