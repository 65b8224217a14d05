// Package upload implements the chunked-transfer engine: chunks arrive in
// any order per file, files are reassembled exactly once and promoted to
// object storage, and each upload session ends with exactly one success or
// failure notification no matter how many requests race to finish it.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bridgeml/bridge/internal/notify"
	"github.com/bridgeml/bridge/internal/session"
	"github.com/bridgeml/bridge/internal/storage"
	"github.com/bridgeml/bridge/pkg/types"
	"github.com/bridgeml/bridge/pkg/utils"
)

// Service coordinates chunk uploads for in-memory upload sessions
type Service struct {
	sessions   *session.Store[types.UploadSession]
	assembler  *Assembler
	objects    storage.ObjectStore
	notifier   notify.Dispatcher
	dataBucket string
}

// NewService creates an upload coordinator
func NewService(sessions *session.Store[types.UploadSession], assembler *Assembler, objects storage.ObjectStore, notifier notify.Dispatcher, dataBucket string) *Service {
	return &Service{
		sessions:   sessions,
		assembler:  assembler,
		objects:    objects,
		notifier:   notifier,
		dataBucket: dataBucket,
	}
}

// StartSession registers a new upload session and returns its id
func (s *Service) StartSession(ctx context.Context, userID string, totalFiles int) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: missing user id", types.ErrValidation)
	}
	if totalFiles <= 0 {
		return "", fmt.Errorf("%w: total files must be positive", types.ErrValidation)
	}

	sessionID := uuid.NewString()
	created := s.sessions.Create(sessionID, types.UploadSession{
		SessionID:  sessionID,
		UserID:     userID,
		TotalFiles: totalFiles,
		CreatedAt:  time.Now().UTC(),
	})
	if !created {
		// uuid collisions do not happen in practice; callers retry with a
		// fresh id if they ever see this
		return "", fmt.Errorf("session id collision: %s", sessionID)
	}

	log.Info().
		Str("session_id", sessionID).
		Str("user_id", userID).
		Int("total_files", totalFiles).
		Msg("upload session started")

	return sessionID, nil
}

// Status returns a progress snapshot for the session
func (s *Service) Status(sessionID string) (types.UploadSession, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return types.UploadSession{}, types.ErrSessionNotFound
	}
	return sess, nil
}

// SubmitChunk persists one chunk for the session. When the chunk completes a
// file, the file is promoted to object storage and the session's counter
// advances; the request that brings the counter to the total wins the
// removal race and emits the single success notification. A failed write or
// reassembly terminates the session the same way, with a failure
// notification from the removal winner.
func (s *Service) SubmitChunk(ctx context.Context, sessionID, userID string, req types.ChunkUpload, payload io.Reader) error {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return types.ErrSessionNotFound
	}
	if sess.UserID != userID {
		return types.ErrNotSessionOwner
	}
	if req.Label == "" || req.FileName == "" {
		return fmt.Errorf("%w: label and file name are required", types.ErrValidation)
	}

	result, err := s.assembler.WriteChunk(sessionID, req.Label, req.FileName, req.ChunkIndex, req.TotalChunks, payload)
	if err != nil {
		// A malformed request is the caller's problem; only a real assembly
		// failure terminates the session.
		if errors.Is(err, types.ErrValidation) {
			return err
		}
		s.failSession(ctx, sessionID, sess.UserID)
		return err
	}

	if !result.Completed {
		return nil
	}

	key := utils.ObjectKey(sess.UserID, result.LabelPath, result.FileName)
	if err := s.objects.PutObject(ctx, s.dataBucket, key, result.TargetPath); err != nil {
		s.failSession(ctx, sessionID, sess.UserID)
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}

	updated, err := s.sessions.Mutate(sessionID, func(sess *types.UploadSession) {
		if sess.FilesUploaded < sess.TotalFiles {
			sess.FilesUploaded++
		}
	})
	if err != nil {
		// The session was already terminated by a racing request.
		return types.ErrSessionNotFound
	}

	log.Info().
		Str("session_id", sessionID).
		Str("key", key).
		Int("files_uploaded", updated.FilesUploaded).
		Int("total_files", updated.TotalFiles).
		Msg("file promoted to object storage")

	if updated.FilesUploaded == updated.TotalFiles && s.sessions.Remove(sessionID) {
		s.dispatch(ctx, updated.UserID, fmt.Sprintf(
			"Your dataset upload has completed. All %d files were uploaded successfully.",
			updated.TotalFiles))
		s.cleanupScratch(sessionID)
	}

	return nil
}

// failSession terminates the session after an unrecoverable chunk error.
// Only the request that wins the removal dispatches the failure
// notification and cleans the scratch directory.
func (s *Service) failSession(ctx context.Context, sessionID, userID string) {
	sess, ok := s.sessions.Get(sessionID)
	if !s.sessions.Remove(sessionID) {
		return
	}

	filesUploaded, totalFiles := 0, 0
	if ok {
		filesUploaded, totalFiles = sess.FilesUploaded, sess.TotalFiles
	}

	log.Error().
		Str("session_id", sessionID).
		Int("files_uploaded", filesUploaded).
		Int("total_files", totalFiles).
		Msg("upload session failed")

	s.dispatch(ctx, userID, fmt.Sprintf(
		"An error occurred during your dataset upload after %d of %d files. Please try again later.",
		filesUploaded, totalFiles))
	s.cleanupScratch(sessionID)
}

func (s *Service) dispatch(ctx context.Context, userID, message string) {
	if err := s.notifier.Dispatch(ctx, userID, message); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to dispatch notification")
	}
}

func (s *Service) cleanupScratch(sessionID string) {
	if err := s.assembler.RemoveSession(sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("scratch cleanup exhausted retries")
	}
}
