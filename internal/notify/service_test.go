package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bridgeml/bridge/pkg/types"
)

type publisherRecorder struct {
	mu       sync.Mutex
	channels []string
	err      error
}

func (p *publisherRecorder) Publish(ctx context.Context, channel string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	return p.err
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Notification{}))
	return db
}

func TestDispatch_PersistsAndPublishes(t *testing.T) {
	db := setupTestDB(t)
	publisher := &publisherRecorder{}
	svc := NewService(db, publisher)

	err := svc.Dispatch(context.Background(), "user1", "Your model has finished training.")
	require.NoError(t, err)

	var stored []types.Notification
	require.NoError(t, db.Where("user_id = ?", "user1").Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.Equal(t, "Your model has finished training.", stored[0].Message)
	assert.False(t, stored[0].IsRead)
	assert.NotEmpty(t, stored[0].ID)

	assert.Equal(t, []string{"notifications:user1"}, publisher.channels)
}

func TestDispatch_PublishFailureIsSwallowed(t *testing.T) {
	db := setupTestDB(t)
	publisher := &publisherRecorder{err: errors.New("redis down")}
	svc := NewService(db, publisher)

	err := svc.Dispatch(context.Background(), "user1", "hello")
	assert.NoError(t, err, "the record is durable; a push failure must not surface")

	var count int64
	require.NoError(t, db.Model(&types.Notification{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDispatch_NilPublisher(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, nil)

	err := svc.Dispatch(context.Background(), "user1", "hello")
	assert.NoError(t, err)
}
