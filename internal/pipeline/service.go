// Package pipeline drives the download/clean/train state machine against
// the external compute service. Each session moves forward only; failures
// collapse into an absorbing error state that removes the session and emits
// a single failure notification.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bridgeml/bridge/internal/notify"
	"github.com/bridgeml/bridge/internal/session"
	"github.com/bridgeml/bridge/pkg/types"
)

// Service orchestrates model-configuration sessions
type Service struct {
	sessions      *session.Store[types.PipelineSession]
	client        *Client
	notifier      notify.Dispatcher
	dataBucket    string
	resultsBucket string
}

// NewService creates a pipeline orchestrator
func NewService(sessions *session.Store[types.PipelineSession], client *Client, notifier notify.Dispatcher, dataBucket, resultsBucket string) *Service {
	return &Service{
		sessions:      sessions,
		client:        client,
		notifier:      notifier,
		dataBucket:    dataBucket,
		resultsBucket: resultsBucket,
	}
}

// StartSession registers a new pipeline session in the Initialized state
func (s *Service) StartSession(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: missing user id", types.ErrValidation)
	}

	sessionID := uuid.NewString()
	if !s.sessions.Create(sessionID, types.PipelineSession{
		SessionID: sessionID,
		UserID:    userID,
		State:     types.StateInitialized,
		CreatedAt: time.Now().UTC(),
	}) {
		return "", fmt.Errorf("session id collision: %s", sessionID)
	}

	log.Info().
		Str("session_id", sessionID).
		Str("user_id", userID).
		Msg("pipeline session started")

	return sessionID, nil
}

// DownloadFiles asks the compute service to stage the user's labeled
// dataset and stores the returned working directory on the session
func (s *Service) DownloadFiles(ctx context.Context, sessionID, userID, label string) (*types.DownloadResponse, error) {
	sess, err := s.authorize(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if label == "" {
		return nil, fmt.Errorf("%w: missing label", types.ErrValidation)
	}

	resp, err := s.client.DownloadFiles(ctx, types.DownloadRequest{
		BucketName: s.dataBucket,
		UserID:     sess.UserID,
		Label:      label,
	})
	if err != nil {
		s.failSession(ctx, sessionID, sess.UserID, err)
		return nil, err
	}

	updated, err := s.sessions.Mutate(sessionID, func(p *types.PipelineSession) {
		p.WorkingDir = resp.FilePath
		p.State = types.StateDownloaded
	})
	if err != nil {
		return nil, types.ErrSessionNotFound
	}

	log.Info().
		Str("session_id", sessionID).
		Str("working_dir", updated.WorkingDir).
		Msg("dataset downloaded")

	return resp, nil
}

// CleanFiles runs the preprocessing step over the session's working
// directory. Empty caller fields fall back to the documented defaults; the
// input path is always the session's stored handle, never caller-supplied.
func (s *Service) CleanFiles(ctx context.Context, sessionID, userID string, req types.CleaningRequest) (*types.CleaningResponse, error) {
	sess, err := s.authorize(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if sess.WorkingDir == "" {
		return nil, fmt.Errorf("%w: no downloaded files to clean", types.ErrValidation)
	}

	resp, err := s.client.CleanFiles(ctx, mergeCleaningDefaults(req, sess.WorkingDir))
	if err != nil {
		s.failSession(ctx, sessionID, sess.UserID, err)
		return nil, err
	}

	if _, err := s.sessions.Mutate(sessionID, func(p *types.PipelineSession) {
		p.WorkingDir = resp.FilePath
		p.State = types.StateCleaned
	}); err != nil {
		return nil, types.ErrSessionNotFound
	}

	log.Info().
		Str("session_id", sessionID).
		Str("working_dir", resp.FilePath).
		Msg("dataset cleaned")

	return resp, nil
}

// TrainModel starts training over the session's working directory. The
// session transitions to TrainingStarted before the upstream call, so a
// duplicate train request on the same session is rejected rather than
// issued twice.
func (s *Service) TrainModel(ctx context.Context, sessionID, userID string, req types.TrainingRequest) (json.RawMessage, error) {
	sess, err := s.authorize(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if sess.WorkingDir == "" {
		return nil, fmt.Errorf("%w: no downloaded files to train on", types.ErrValidation)
	}

	var alreadyTraining bool
	updated, err := s.sessions.Mutate(sessionID, func(p *types.PipelineSession) {
		if p.State == types.StateTrainingStarted || p.State == types.StateTrainingCompleted {
			alreadyTraining = true
			return
		}
		p.State = types.StateTrainingStarted
	})
	if err != nil {
		return nil, types.ErrSessionNotFound
	}
	if alreadyTraining {
		return nil, fmt.Errorf("%w: training already started for session %s", types.ErrValidation, sessionID)
	}

	req.BucketName = s.resultsBucket
	req.UserID = updated.UserID
	req.InputPath = updated.WorkingDir

	result, err := s.client.TrainModel(ctx, req)
	if err != nil {
		s.failSession(ctx, sessionID, sess.UserID, err)
		return nil, err
	}

	// The completed session is intentionally retained; only failure paths
	// remove pipeline sessions.
	if _, err := s.sessions.Mutate(sessionID, func(p *types.PipelineSession) {
		p.State = types.StateTrainingCompleted
	}); err != nil {
		return nil, types.ErrSessionNotFound
	}

	log.Info().Str("session_id", sessionID).Msg("model training completed")

	s.dispatch(ctx, updated.UserID,
		"Your model has finished training. You can now check the results.")

	return result, nil
}

// Status returns a snapshot of the session
func (s *Service) Status(sessionID, userID string) (types.PipelineSession, error) {
	sess, err := s.authorize(sessionID, userID)
	if err != nil {
		return types.PipelineSession{}, err
	}
	return sess, nil
}

func (s *Service) authorize(sessionID, userID string) (types.PipelineSession, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return types.PipelineSession{}, types.ErrSessionNotFound
	}
	if sess.UserID != userID {
		return types.PipelineSession{}, types.ErrNotSessionOwner
	}
	return sess, nil
}

// failSession marks the session as errored and removes it. The removal
// winner emits the single failure notification.
func (s *Service) failSession(ctx context.Context, sessionID, userID string, cause error) {
	s.sessions.Mutate(sessionID, func(p *types.PipelineSession) {
		p.State = types.StateError
	})

	if !s.sessions.Remove(sessionID) {
		return
	}

	log.Error().
		Err(cause).
		Str("session_id", sessionID).
		Str("user_id", userID).
		Msg("pipeline session failed")

	s.dispatch(ctx, userID,
		"An error occurred during the model configuration process. Please try again later.")
}

func (s *Service) dispatch(ctx context.Context, userID, message string) {
	if err := s.notifier.Dispatch(ctx, userID, message); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to dispatch notification")
	}
}

// mergeCleaningDefaults fills empty caller fields with the preprocessing
// defaults and pins the input path to the session's working directory
func mergeCleaningDefaults(req types.CleaningRequest, workingDir string) types.CleaningRequest {
	req.InputPath = workingDir
	if req.PatientIdentifier == "" {
		req.PatientIdentifier = "defaultIdentifier"
	}
	if req.EncodingMethod == "" {
		req.EncodingMethod = "label"
	}
	if req.ScaleMethod == "" {
		req.ScaleMethod = "standardize"
	}
	if req.ExcludedColumns == nil {
		req.ExcludedColumns = []string{}
	}
	return req
}
