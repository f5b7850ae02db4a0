package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pimentor/backend/core/user"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	orig := NowFunc
	defer func() { NowFunc = orig }()
	NowFunc = func() time.Time { return now }

	s := NewMemoryStore()
	require.NoError(t, s.SaveCode(ctx, "otp:register:a@test.in", "111111", time.Minute))
	require.NoError(t, s.SaveCode(ctx, "otp:reset:a@test.in", "222222", 2*time.Minute))

	code, err := s.GetCode(ctx, "otp:register:a@test.in")
	require.NoError(t, err)
	assert.Equal(t, "111111", code)

	// replaced
	require.NoError(t, s.SaveCode(ctx, "otp:register:a@test.in", "333333", time.Minute))
	code, err = s.GetCode(ctx, "otp:register:a@test.in")
	require.NoError(t, err)
	assert.Equal(t, "333333", code)

	// a stale code leaves the current one in place
	assert.Equal(t, user.ErrCodeNotFound, s.ConsumeCode(ctx, "otp:register:a@test.in", "111111"))
	code, err = s.GetCode(ctx, "otp:register:a@test.in")
	require.NoError(t, err)
	assert.Equal(t, "333333", code)

	require.NoError(t, s.ConsumeCode(ctx, "otp:register:a@test.in", "333333"))
	assert.Equal(t, user.ErrCodeNotFound, s.ConsumeCode(ctx, "otp:register:a@test.in", "333333"))
	_, err = s.GetCode(ctx, "otp:register:a@test.in")
	assert.Equal(t, user.ErrCodeNotFound, err)

	now = now.Add(2 * time.Minute)
	_, err = s.GetCode(ctx, "otp:reset:a@test.in")
	assert.Equal(t, user.ErrCodeNotFound, err)
	assert.Empty(t, s.entries)

	_, err = s.GetCode(ctx, "unknown")
	assert.Equal(t, user.ErrCodeNotFound, err)
}
