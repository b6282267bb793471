package services

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"tokoadmin/internal/imagestore"
	"tokoadmin/internal/metrics"
)

// ArtifactCleanupQueue receives artifact.orphaned events.
const ArtifactCleanupQueue = "catalog_artifact_cleanup"

// ArtifactJanitor retries deletion of image artifacts that were left behind.
type ArtifactJanitor struct {
	images  imagestore.Store
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
}

// NewArtifactJanitor creates a new ArtifactJanitor.
func NewArtifactJanitor(images imagestore.Store, m *metrics.Metrics, log *zap.SugaredLogger) *ArtifactJanitor {
	return &ArtifactJanitor{images: images, metrics: m, log: log}
}

// Handle processes one artifact.orphaned message body. A nil return means
// the message is done: the artifact is gone, was already missing, or the
// message can never succeed. Other errors ask for redelivery.
func (j *ArtifactJanitor) Handle(ctx context.Context, body []byte) error {
	var event CatalogEvent
	if err := json.Unmarshal(body, &event); err != nil {
		j.log.Errorw("dropping malformed orphan event", "error", err)
		return nil
	}
	if event.Type != EventArtifactOrphaned || event.Reference == "" {
		j.log.Warnw("ignoring unexpected event", "type", event.Type)
		return nil
	}
	folder, width, height := event.Folder, event.Width, event.Height
	if folder == "" {
		folder, width, height = ImageFolder, ImageWidth, ImageHeight
	}

	err := j.images.Delete(ctx, event.Reference, folder, width, height)
	switch {
	case err == nil:
		j.log.Infow("orphaned artifact removed", "reference", event.Reference)
		j.metrics.Observe("janitor", metrics.ResultSuccess)
		return nil
	case errors.Is(err, imagestore.ErrArtifactNotFound):
		j.metrics.Observe("janitor", metrics.ResultSuccess)
		return nil
	case errors.Is(err, imagestore.ErrProtectedArtifact), errors.Is(err, imagestore.ErrInvalidReference):
		j.log.Warnw("orphan event cannot be processed", "reference", event.Reference, "error", err)
		j.metrics.Observe("janitor", metrics.ResultRejected)
		return nil
	default:
		j.metrics.Observe("janitor", metrics.ResultError)
		return errors.Wrapf(err, "remove orphaned artifact %s", event.Reference)
	}
}
