package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsActor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := ContextWithActor(context.Background(), "staff-1", "STAFF")

	WithContext(ctx, zap.New(core)).Info("decided")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "staff-1", fields["actor_id"])
	require.Equal(t, "STAFF", fields["actor_role"])
	require.NotContains(t, fields, "request_id")
}

func TestWithContextNilLogger(t *testing.T) {
	require.NotNil(t, WithContext(context.Background(), nil))
}
