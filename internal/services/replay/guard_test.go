package replay

import (
	"context"
	"testing"
	"time"

	"egiro-gateway/pkg/errors"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.BoolCmd)
}

func TestRedisGuard_Reserve_New(t *testing.T) {
	mockRedis := new(MockRedisClient)
	guard := NewRedisGuard(mockRedis, "egiro", time.Hour, zap.NewNop())

	cmd := redis.NewBoolCmd(context.Background())
	cmd.SetVal(true)
	mockRedis.On("SetNX", mock.Anything, "egiro:issued:nonce:12345678901234567890", 1, time.Hour).Return(cmd)

	ok, err := guard.Reserve(context.Background(), "nonce", "12345678901234567890")

	require.NoError(t, err)
	assert.True(t, ok)
	mockRedis.AssertExpectations(t)
}

func TestRedisGuard_Reserve_AlreadyIssued(t *testing.T) {
	mockRedis := new(MockRedisClient)
	guard := NewRedisGuard(mockRedis, "egiro", time.Hour, zap.NewNop())

	cmd := redis.NewBoolCmd(context.Background())
	cmd.SetVal(false)
	mockRedis.On("SetNX", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(cmd)

	ok, err := guard.Reserve(context.Background(), "nonce", "1")

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisGuard_Reserve_RedisError(t *testing.T) {
	mockRedis := new(MockRedisClient)
	guard := NewRedisGuard(mockRedis, "egiro", time.Hour, zap.NewNop())

	cmd := redis.NewBoolCmd(context.Background())
	cmd.SetErr(redis.ErrClosed)
	mockRedis.On("SetNX", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(cmd)

	ok, err := guard.Reserve(context.Background(), "request_id", "x")

	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errors.IsKind(err, errors.KindInternal))
}

func TestMemoryGuard_ReserveAndExpire(t *testing.T) {
	guard := NewMemoryGuard(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := guard.Reserve(ctx, "nonce", "1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = guard.Reserve(ctx, "nonce", "1")
	assert.False(t, ok)

	ok, _ = guard.Reserve(ctx, "request_id", "1")
	assert.True(t, ok, "kinds are independent")

	now = now.Add(2 * time.Minute)
	ok, _ = guard.Reserve(ctx, "nonce", "1")
	assert.True(t, ok)
}

func TestMemoryGuard_SweepsExpired(t *testing.T) {
	guard := NewMemoryGuard(time.Second)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, _ = guard.Reserve(ctx, "nonce", string(rune('a'+i%26))+time.Duration(i).String())
	}
	now = now.Add(time.Hour)
	for i := 0; i < 1024; i++ {
		_, _ = guard.Reserve(ctx, "fresh", "same")
	}

	assert.Equal(t, 1, guard.Len())
}

type MockReservationRecorder struct {
	mock.Mock
}

func (m *MockReservationRecorder) RecordReservation(kind, result string) {
	m.Called(kind, result)
}

func TestWithMetrics_RecordsEachResult(t *testing.T) {
	mockRedis := new(MockRedisClient)
	reserved := redis.NewBoolCmd(context.Background())
	reserved.SetVal(true)
	taken := redis.NewBoolCmd(context.Background())
	taken.SetVal(false)
	failed := redis.NewBoolCmd(context.Background())
	failed.SetErr(assert.AnError)
	mockRedis.On("SetNX", mock.Anything, "egiro:issued:nonce:1", 1, time.Hour).Return(reserved).Once()
	mockRedis.On("SetNX", mock.Anything, "egiro:issued:nonce:1", 1, time.Hour).Return(taken).Once()
	mockRedis.On("SetNX", mock.Anything, "egiro:issued:nonce:2", 1, time.Hour).Return(failed).Once()

	recorder := new(MockReservationRecorder)
	recorder.On("RecordReservation", "nonce", "reserved").Once()
	recorder.On("RecordReservation", "nonce", "collision").Once()
	recorder.On("RecordReservation", "nonce", "error").Once()

	guard := WithMetrics(NewRedisGuard(mockRedis, "egiro", time.Hour, zap.NewNop()), recorder)
	ctx := context.Background()

	ok, err := guard.Reserve(ctx, "nonce", "1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Reserve(ctx, "nonce", "1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = guard.Reserve(ctx, "nonce", "2")
	assert.True(t, errors.IsKind(err, errors.KindInternal))

	recorder.AssertExpectations(t)
}
