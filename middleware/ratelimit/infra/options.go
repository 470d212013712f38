package infra

import (
	"time"

	"go.uber.org/zap"
)

// TaskRunner é o scheduler do host onde o TaskBucket submete seu loop de refill.
// *errgroup.Group satisfaz esta interface.
type TaskRunner interface {
	Go(f func() error)
}

// goRunner é o runner padrão: uma goroutine simples, sem grupo.
type goRunner struct{}

func (goRunner) Go(f func() error) { go func() { _ = f() }() }

type bucketOptions struct {
	logger *zap.Logger
	now    func() time.Time
	runner TaskRunner
}

type BucketOption func(*bucketOptions)

// WithLogger define o logger usado no ciclo de vida dos workers.
func WithLogger(l *zap.Logger) BucketOption {
	return func(o *bucketOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock troca o relógio de parede do AtomicLazyBucket (útil em testes).
func WithClock(now func() time.Time) BucketOption {
	return func(o *bucketOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTaskRunner define onde o TaskBucket roda seu loop (ex: o errgroup do processo).
func WithTaskRunner(r TaskRunner) BucketOption {
	return func(o *bucketOptions) {
		if r != nil {
			o.runner = r
		}
	}
}

func newBucketOptions(opts []BucketOption) bucketOptions {
	o := bucketOptions{
		logger: zap.NewNop(),
		now:    time.Now,
		runner: goRunner{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
