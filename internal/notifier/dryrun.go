package notifier

import (
	"context"
	"sync"

	"MarketPulse/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DryRunPublisher logs what would have been posted and keeps the requests.
type DryRunPublisher struct {
	Log *zap.Logger

	mu        sync.Mutex
	published []model.PublishRequest
}

// NewDryRunPublisher returns a publisher that never touches the network.
func NewDryRunPublisher(log *zap.Logger) *DryRunPublisher {
	return &DryRunPublisher{Log: log}
}

func (d *DryRunPublisher) Name() string { return "dryrun" }

func (d *DryRunPublisher) Publish(_ context.Context, req model.PublishRequest) (string, error) {
	id := "dryrun-" + uuid.NewString()
	d.mu.Lock()
	d.published = append(d.published, req)
	d.mu.Unlock()

	d.Log.Info("dry run publish",
		zap.String("post_id", id),
		zap.Int("image_bytes", len(req.Image)),
		zap.String("text", req.Text),
	)
	return id, nil
}

// Published returns the requests seen so far.
func (d *DryRunPublisher) Published() []model.PublishRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.PublishRequest(nil), d.published...)
}
