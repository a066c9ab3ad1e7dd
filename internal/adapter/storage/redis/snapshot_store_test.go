package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewSnapshotStore_BadURL(t *testing.T) {
	_, err := NewSnapshotStore("not-a-redis-url", zap.NewNop())
	assert.Error(t, err)
}

func TestNewSnapshotStore_Unreachable(t *testing.T) {
	_, err := NewSnapshotStore("redis://127.0.0.1:1/0", zap.NewNop())
	assert.Error(t, err)
}
