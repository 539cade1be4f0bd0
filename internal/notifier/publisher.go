package notifier

import (
	"context"
	"fmt"
	"strings"

	"MarketPulse/internal/model"
)

// Publisher posts a message, with an optional image, and returns the post id.
// Each call is a single attempt.
type Publisher interface {
	Publish(ctx context.Context, req model.PublishRequest) (postID string, err error)
	Name() string
}

// PublishError reports which step of a publish failed.
type PublishError struct {
	Publisher string
	Stage     string // "credentials", "upload", "post" or "send"
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Publisher, e.Stage, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// MissingCredentialsError names every credential variable that is unset.
type MissingCredentialsError struct {
	Names []string
}

func (e *MissingCredentialsError) Error() string {
	return "missing required credentials: " + strings.Join(e.Names, ", ")
}
