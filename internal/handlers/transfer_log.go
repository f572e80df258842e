package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/sftpgate/internal/middleware"
	"github.com/charlesng35/sftpgate/internal/transfer"
	"github.com/charlesng35/sftpgate/pkg/logger"
	"github.com/charlesng35/sftpgate/pkg/metrics"
)

const (
	directionDownload = "download"
	directionArchive  = "archive"
	directionUpload   = "upload"

	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeAborted = "aborted"
)

type transferLog struct {
	id        string
	requestID string
	direction string
	path      string
	start     time.Time
}

func startTransfer(c *gin.Context, direction, path string) *transferLog {
	return &transferLog{
		id:        uuid.NewString(),
		requestID: middleware.RequestID(c),
		direction: direction,
		path:      path,
		start:     time.Now(),
	}
}

// transferOutcome separates remote failures from the client going away. Remote
// failures are always classified by the transfer package.
func transferOutcome(err error) string {
	if err == nil {
		return outcomeOK
	}
	var terr *transfer.Error
	if errors.As(err, &terr) && !errors.Is(err, context.Canceled) {
		return outcomeError
	}
	return outcomeAborted
}

func (t *transferLog) finish(bytes int64, err error) {
	t.record(bytes, err, zap.Int64("bytes", bytes))
}

func (t *transferLog) finishArchive(stats transfer.ArchiveStats, err error) {
	t.record(stats.Bytes, err, zap.Int64("bytes", stats.Bytes), zap.Int("entries", stats.Entries))
}

func (t *transferLog) record(bytes int64, err error, extra ...zap.Field) {
	outcome := transferOutcome(err)
	metrics.Transfers.WithLabelValues(t.direction, outcome).Inc()
	metrics.TransferBytes.WithLabelValues(t.direction).Add(float64(bytes))

	fields := append([]zap.Field{
		zap.String("transfer_id", t.id),
		zap.String("request_id", t.requestID),
		zap.String("direction", t.direction),
		zap.String("path", t.path),
		zap.Duration("duration", time.Since(t.start)),
		zap.String("outcome", outcome),
	}, extra...)

	log := logger.WithModule("transfer")
	switch outcome {
	case outcomeOK:
		log.Info("transfer complete", fields...)
	case outcomeAborted:
		log.Warn("transfer aborted", append(fields, zap.Error(err))...)
	default:
		log.Error("transfer failed", append(fields, zap.Error(err))...)
	}
}
