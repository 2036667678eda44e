package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sounderhq/sounder/internal/models"
)

// ModelGateway is the single capability interface for structured language
// model calls. Adapters are selected at configuration time; callers never
// depend on a provider identity.
type ModelGateway interface {
	// Invoke renders the prompt template identified by promptID with vars,
	// calls the model service, and decodes the structured response into out.
	// A response that does not match out's shape is a *SchemaError, never a
	// silently partial value.
	Invoke(ctx context.Context, promptID string, vars map[string]any, out any) error
}

// SearchGateway is the single capability interface for web search calls.
type SearchGateway interface {
	Search(ctx context.Context, query string, maxResults int) ([]models.SourceCandidate, error)
}

// Validator lets response payloads enforce their own structural contract
// after decoding.
type Validator interface {
	Validate() error
}

// Error is a transient transport or provider failure. The gateway adapter
// retries these with bounded exponential backoff before surfacing one.
type Error struct {
	Op       string
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s (%s): %v", e.Op, e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SchemaError reports that the model returned a structurally invalid
// response for the requested shape. It is a contract violation, not a
// transient failure, and is never retried.
type SchemaError struct {
	PromptID string
	Err      error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("model response for %q does not match schema: %v", e.PromptID, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// IsGatewayError reports whether err is (or wraps) a transient gateway
// failure.
func IsGatewayError(err error) bool {
	var ge *Error
	return errors.As(err, &ge)
}

// IsSchemaError reports whether err is (or wraps) a schema contract
// violation.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// Retry runs fn up to attempts times with exponential backoff starting at
// base. Only transient failures are retried; schema errors and context
// cancellation end the loop immediately.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	delay := base
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if IsSchemaError(lastErr) || errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}
