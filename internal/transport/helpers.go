package transport

import (
	"errors"
	"io"
	"log"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
)

const archiveName = "watermarked.zip"

var errRequestTooLarge = errors.New("request body is too large")

func errorCodeDefiner(err error) int {
	switch {
	case errors.Is(err, model.ErrCommon500):
		return 500
	case errors.Is(err, model.ErrSessionNotFound),
		errors.Is(err, model.ErrItemNotFound),
		errors.Is(err, model.ErrResultNotReady):
		return 404
	case errors.Is(err, model.ErrExportInProgress),
		errors.Is(err, model.ErrStalePreview):
		return 409
	case errors.Is(err, model.ErrStorageFull),
		errors.Is(err, errRequestTooLarge):
		return 413
	case errors.Is(err, model.ErrQueueFull):
		return 503
	case errors.Is(err, model.ErrIncorrectQuery),
		errors.Is(err, model.ErrIncorrectID),
		errors.Is(err, model.ErrIncorrectParams),
		errors.Is(err, model.ErrEmptyBatch),
		errors.Is(err, model.ErrEmptySource),
		errors.Is(err, model.ErrEmptyWMark),
		errors.Is(err, model.ErrHEICConversion),
		errors.Is(err, model.ErrNoDrawableSurface),
		errors.Is(err, model.ErrUnsupportedFormat):
		return 400
	default:
		return 500
	}
}

func closeFileFlow(res io.ReadCloser) {
	if res == nil {
		return
	}
	if err := res.Close(); err != nil {
		log.Println("Handler failed to close fileflow:", err)
	}
}
