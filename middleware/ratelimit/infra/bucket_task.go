package infra

import (
	"context"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// TaskBucket tem a mesma lógica de tokens do ThreadBucket, mas o loop de refill é uma
// task submetida ao scheduler do host (TaskRunner), sem ocupar uma thread do SO.
//
// O loop acorda pelo timer da próxima janela ou pelo cancelamento do contexto, o que
// vier primeiro. Cancelar o contexto do host também encerra o refill; depois disso o
// bucket só se esvazia.
type TaskBucket struct {
	window time.Duration
	quota  int64
	tokens atomic.Int64

	worker *worker
}

var _ domain.RateLimiter = (*TaskBucket)(nil)

func NewTaskBucket(quota domain.Quota, opts ...BucketOption) (*TaskBucket, error) {
	return NewTaskBucketContext(context.Background(), quota, opts...)
}

// NewTaskBucketContext amarra o loop ao contexto do host.
//
// Cancelado o ctx, o bucket entrega o que resta e depois nega para sempre. Use um
// contexto que viva tanto quanto o tráfego servido; Stopped reporta esse estado.
func NewTaskBucketContext(ctx context.Context, quota domain.Quota, opts ...BucketOption) (*TaskBucket, error) {
	if err := quota.Validate(); err != nil {
		return nil, err
	}
	o := newBucketOptions(opts)

	b := &TaskBucket{
		window: quota.Window,
		quota:  quota.Tokens(),
	}
	b.tokens.Store(b.quota)

	taskCtx, cancel := context.WithCancel(ctx)
	b.worker = newWorker("task-bucket", o.logger, cancel)
	o.runner.Go(func() error {
		b.worker.run(func() { b.loop(taskCtx) })
		// cancelamento é o caminho normal de saída; não derruba o grupo do host
		return nil
	})

	return b, nil
}

func (b *TaskBucket) Acquire() bool { return take(&b.tokens) }

// Stopped indica que o refill terminou, por Close ou pelo cancelamento do host.
func (b *TaskBucket) Stopped() bool { return b.worker.exited() }

// Close cancela a task e espera ela terminar antes de liberar o estado.
func (b *TaskBucket) Close() error { return b.worker.stop() }

func (b *TaskBucket) loop(ctx context.Context) {
	next := time.Now()
	timer := time.NewTimer(b.window)
	defer timer.Stop()

	for {
		next = next.Add(b.window)
		timer.Reset(time.Until(next))

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			b.tokens.Store(b.quota)
		}
	}
}
