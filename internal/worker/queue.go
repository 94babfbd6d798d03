package worker

import (
	"context"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/wb-go/wbf/retry"
)

// Queue - in-process очередь задач экспорта, буферизованный канал
type Queue struct {
	jobs chan *model.ExportJob
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{jobs: make(chan *model.ExportJob, size)}
}

func (q *Queue) Jobs() <-chan *model.ExportJob { return q.jobs }

// SendWithRetry tries to put job into the queue, waiting between attempts per strategy.
// A queue that stays full through every attempt yields model.ErrQueueFull.
func (q *Queue) SendWithRetry(ctx context.Context, strategy retry.Strategy, job *model.ExportJob) error {
	err := retry.DoContext(ctx, strategy, func() error {
		select {
		case q.jobs <- job:
			return nil
		default:
			return model.ErrQueueFull
		}
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return model.ErrQueueFull
}

// Close - после закрытия воркеры дочитывают буфер и выходят
func (q *Queue) Close() {
	close(q.jobs)
}
