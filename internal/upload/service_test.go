package upload

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgeml/bridge/internal/session"
	"github.com/bridgeml/bridge/internal/storage"
	"github.com/bridgeml/bridge/pkg/types"
)

const testDataBucket = "thesis-data"

type notificationRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *notificationRecorder) Dispatch(ctx context.Context, userID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

func (r *notificationRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func setupUploadService(t *testing.T) (*Service, *session.Store[types.UploadSession], *storage.LocalStore, *notificationRecorder) {
	objects, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	sessions := session.NewStore[types.UploadSession]()
	recorder := &notificationRecorder{}
	assembler := NewAssembler(t.TempDir(), 3, time.Millisecond)

	return NewService(sessions, assembler, objects, recorder, testDataBucket), sessions, objects, recorder
}

func submitSingleChunkFile(t *testing.T, svc *Service, sessionID, userID, label, fileName, content string) {
	t.Helper()
	err := svc.SubmitChunk(context.Background(), sessionID, userID, types.ChunkUpload{
		Label:       label,
		FileName:    fileName,
		ChunkIndex:  0,
		TotalChunks: 1,
	}, bytes.NewReader([]byte(content)))
	require.NoError(t, err)
}

func TestStartSession_Validation(t *testing.T) {
	svc, _, _, _ := setupUploadService(t)
	ctx := context.Background()

	_, err := svc.StartSession(ctx, "", 2)
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = svc.StartSession(ctx, "user1", 0)
	assert.ErrorIs(t, err, types.ErrValidation)

	sessionID, err := svc.StartSession(ctx, "user1", 2)
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)
}

func TestSubmitChunk_UnknownSession(t *testing.T) {
	svc, _, _, _ := setupUploadService(t)

	err := svc.SubmitChunk(context.Background(), "no-such-session", "user1", types.ChunkUpload{
		Label: "heart", FileName: "a.csv", TotalChunks: 1,
	}, bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func TestSubmitChunk_OwnershipEnforced(t *testing.T) {
	svc, sessions, _, recorder := setupUploadService(t)
	ctx := context.Background()

	sessionID, err := svc.StartSession(ctx, "owner", 1)
	require.NoError(t, err)

	err = svc.SubmitChunk(ctx, sessionID, "intruder", types.ChunkUpload{
		Label: "heart", FileName: "a.csv", TotalChunks: 1,
	}, bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, types.ErrNotSessionOwner)

	// No state may change on an ownership mismatch
	sess, ok := sessions.Get(sessionID)
	require.True(t, ok)
	assert.Equal(t, 0, sess.FilesUploaded)
	assert.Empty(t, recorder.all())
}

func TestSubmitChunk_TwoFileScenario(t *testing.T) {
	svc, sessions, objects, recorder := setupUploadService(t)
	ctx := context.Background()

	sessionID, err := svc.StartSession(ctx, "user1", 2)
	require.NoError(t, err)

	// File A arrives in two chunks
	err = svc.SubmitChunk(ctx, sessionID, "user1", types.ChunkUpload{
		Label: "heart", FileName: "a.csv", ChunkIndex: 0, TotalChunks: 2,
	}, bytes.NewReader([]byte("hello ")))
	require.NoError(t, err)

	status, err := svc.Status(sessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, status.FilesUploaded, "in-progress file must not advance the counter")

	err = svc.SubmitChunk(ctx, sessionID, "user1", types.ChunkUpload{
		Label: "heart", FileName: "a.csv", ChunkIndex: 1, TotalChunks: 2,
	}, bytes.NewReader([]byte("world")))
	require.NoError(t, err)

	status, err = svc.Status(sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.FilesUploaded)

	// File B is a single chunk and completes the session
	submitSingleChunkFile(t, svc, sessionID, "user1", "heart", "b.csv", "bees")

	_, err = svc.Status(sessionID)
	assert.ErrorIs(t, err, types.ErrSessionNotFound, "completed session must be removed")
	assert.Equal(t, 0, sessions.Len())

	contentA, err := objects.GetObject(ctx, testDataBucket, "user1/heart/a.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), contentA)

	contentB, err := objects.GetObject(ctx, testDataBucket, "user1/heart/b.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("bees"), contentB)

	messages := recorder.all()
	require.Len(t, messages, 1, "exactly one terminal notification per session")
	assert.Contains(t, messages[0], "All 2 files")
}

func TestSubmitChunk_ExplanatoryFileKey(t *testing.T) {
	svc, _, objects, _ := setupUploadService(t)
	ctx := context.Background()

	sessionID, err := svc.StartSession(ctx, "user1", 1)
	require.NoError(t, err)

	submitSingleChunkFile(t, svc, sessionID, "user1", "heart", "explanatory_file.csv", "cols")

	content, err := objects.GetObject(ctx, testDataBucket, "user1/heart/explanatory/explanatory_data.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("cols"), content)
}

func TestSubmitChunk_RacingCompletionsNotifyOnce(t *testing.T) {
	svc, sessions, _, recorder := setupUploadService(t)
	ctx := context.Background()

	const totalFiles = 8
	sessionID, err := svc.StartSession(ctx, "user1", totalFiles)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < totalFiles; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := svc.SubmitChunk(ctx, sessionID, "user1", types.ChunkUpload{
				Label:       "heart",
				FileName:    fmt.Sprintf("f%d.csv", i),
				ChunkIndex:  0,
				TotalChunks: 1,
			}, bytes.NewReader([]byte("data")))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, recorder.all(), 1, "racing completions must produce a single notification")
	assert.Equal(t, 0, sessions.Len(), "session must be absent after completion")
}

func TestSubmitChunk_AssemblyFailureTerminatesSession(t *testing.T) {
	svc, sessions, _, recorder := setupUploadService(t)
	ctx := context.Background()

	sessionID, err := svc.StartSession(ctx, "user1", 2)
	require.NoError(t, err)

	submitSingleChunkFile(t, svc, sessionID, "user1", "heart", "a.csv", "ok")

	// Final chunk of a two-chunk file whose first chunk never arrived
	err = svc.SubmitChunk(ctx, sessionID, "user1", types.ChunkUpload{
		Label: "heart", FileName: "b.csv", ChunkIndex: 1, TotalChunks: 2,
	}, bytes.NewReader([]byte("tail")))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAssembly)

	assert.Equal(t, 0, sessions.Len(), "failed session must be removed")

	messages := recorder.all()
	require.Len(t, messages, 1, "exactly one failure notification")
	assert.Contains(t, messages[0], "1 of 2")

	// The terminated session is gone for every later request
	err = svc.SubmitChunk(ctx, sessionID, "user1", types.ChunkUpload{
		Label: "heart", FileName: "c.csv", TotalChunks: 1,
	}, bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func TestSubmitChunk_InvalidIndexLeavesSessionIntact(t *testing.T) {
	svc, sessions, _, recorder := setupUploadService(t)
	ctx := context.Background()

	sessionID, err := svc.StartSession(ctx, "user1", 2)
	require.NoError(t, err)

	// Out-of-range chunk index is a caller mistake, not an assembly failure
	err = svc.SubmitChunk(ctx, sessionID, "user1", types.ChunkUpload{
		Label: "heart", FileName: "a.csv", ChunkIndex: 5, TotalChunks: 2,
	}, bytes.NewReader([]byte("x")))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrValidation)

	sess, ok := sessions.Get(sessionID)
	require.True(t, ok, "validation errors must not terminate the session")
	assert.Equal(t, 0, sess.FilesUploaded)
	assert.Empty(t, recorder.all(), "validation errors must not notify")

	// The session is still fully usable afterwards
	submitSingleChunkFile(t, svc, sessionID, "user1", "heart", "a.csv", "ok")
	status, err := svc.Status(sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.FilesUploaded)
}

func TestSubmitChunk_CounterNeverExceedsTotal(t *testing.T) {
	svc, _, _, recorder := setupUploadService(t)
	ctx := context.Background()

	sessionID, err := svc.StartSession(ctx, "user1", 1)
	require.NoError(t, err)

	submitSingleChunkFile(t, svc, sessionID, "user1", "heart", "a.csv", "x")

	// The session is gone; a duplicate completion cannot re-create or
	// re-notify it
	err = svc.SubmitChunk(ctx, sessionID, "user1", types.ChunkUpload{
		Label: "heart", FileName: "a.csv", TotalChunks: 1,
	}, bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
	assert.Len(t, recorder.all(), 1)
}
