package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds without retrying", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, time.Millisecond, func(context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient failures up to the budget", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, time.Millisecond, func(context.Context) error {
			calls++
			return &Error{Op: "invoke", Provider: "test", Err: errors.New("boom")}
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.True(t, IsGatewayError(err))
	})

	t.Run("recovers mid-budget", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, time.Millisecond, func(context.Context) error {
			calls++
			if calls < 2 {
				return &Error{Op: "invoke", Provider: "test", Err: errors.New("boom")}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("schema errors are never retried", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, time.Millisecond, func(context.Context) error {
			calls++
			return &SchemaError{PromptID: "p", Err: errors.New("bad shape")}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.True(t, IsSchemaError(err))
	})

	t.Run("stops on canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		calls := 0
		err := Retry(cctx, 3, time.Millisecond, func(context.Context) error {
			calls++
			return nil
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, calls)
	})
}

func TestErrorClassification(t *testing.T) {
	transient := &Error{Op: "search", Provider: "tavily", Err: errors.New("timeout")}
	schema := &SchemaError{PromptID: "research_strategy", Err: errors.New("missing field")}

	assert.True(t, IsGatewayError(transient))
	assert.False(t, IsGatewayError(schema))
	assert.True(t, IsSchemaError(schema))
	assert.False(t, IsSchemaError(transient))

	// Classification survives wrapping.
	wrapped := &Error{Op: "outer", Provider: "x", Err: schema}
	assert.True(t, IsSchemaError(wrapped))

	assert.Contains(t, transient.Error(), "tavily")
	assert.Contains(t, schema.Error(), "research_strategy")
}
