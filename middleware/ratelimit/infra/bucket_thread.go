package infra

import (
	"runtime"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// ThreadBucket é um token bucket recarregado por uma goroutine dedicada, presa à sua
// própria thread do SO. Um worker por instância.
//
// As fronteiras da janela são start + n*window no relógio monotônico, sem drift.
type ThreadBucket struct {
	window time.Duration
	quota  int64
	tokens atomic.Int64

	quit   chan struct{}
	worker *worker
}

var _ domain.RateLimiter = (*ThreadBucket)(nil)

func NewThreadBucket(quota domain.Quota, opts ...BucketOption) (*ThreadBucket, error) {
	if err := quota.Validate(); err != nil {
		return nil, err
	}
	o := newBucketOptions(opts)

	b := &ThreadBucket{
		window: quota.Window,
		quota:  quota.Tokens(),
		quit:   make(chan struct{}),
	}
	b.tokens.Store(b.quota)

	// sinal one-shot: fechar o canal acorda o select do loop
	b.worker = newWorker("thread-bucket", o.logger, func() { close(b.quit) })
	go b.worker.run(b.loop)

	return b, nil
}

func (b *ThreadBucket) Acquire() bool { return take(&b.tokens) }

// Close envia o sinal de término e faz join do worker antes de retornar.
func (b *ThreadBucket) Close() error { return b.worker.stop() }

func (b *ThreadBucket) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	next := time.Now()
	timer := time.NewTimer(b.window)
	defer timer.Stop()

	for {
		next = next.Add(b.window)
		timer.Reset(time.Until(next))

		select {
		case <-b.quit:
			return
		case <-timer.C:
		}

		b.tokens.Store(b.quota)
	}
}
