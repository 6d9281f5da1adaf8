package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerIsExclusivePerKey(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "settle:RMA-1")
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "settle:RMA-1")
	assert.ErrorIs(t, err, ErrLockBusy)

	other, err := locker.Lock(ctx, "settle:RMA-2")
	require.NoError(t, err)
	other()

	unlock()
	again, err := locker.Lock(ctx, "settle:RMA-1")
	require.NoError(t, err)
	again()
}
