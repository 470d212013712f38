package infra

import (
	"fmt"
	"sync"

	"admission-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

type workerState int

const (
	workerRunning workerState = iota
	workerTerminating
	workerJoined
)

func (s workerState) String() string {
	switch s {
	case workerRunning:
		return "running"
	case workerTerminating:
		return "terminating"
	case workerJoined:
		return "joined"
	}
	return fmt.Sprintf("workerState(%d)", int(s))
}

// worker é o handle de um loop de refill em background.
//
// Ciclo de vida: running -> terminating -> joined. A transição para terminating só
// acontece via stop(); joined só depois que o loop retornou (done fechado).
// O mutex protege apenas essa contabilidade (caminho frio), nunca os tokens.
type worker struct {
	name   string
	logger *zap.Logger

	mu     sync.Mutex
	state  workerState
	signal func()
	done   chan struct{}
	err    error // escrito pelo loop antes de fechar done
}

func newWorker(name string, logger *zap.Logger, signal func()) *worker {
	return &worker{
		name:   name,
		logger: logger,
		signal: signal,
		done:   make(chan struct{}),
	}
}

// run executa o loop e marca o worker como terminado, convertendo panic em erro.
// Deve ser chamado dentro da goroutine/task do worker.
func (w *worker) run(loop func()) {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			w.err = fmt.Errorf("%w: %s: %v", domain.ErrWorkerFailed, w.name, r)
		}
	}()
	w.logger.Debug("refill worker started", zap.String("worker", w.name))
	loop()
}

// stop sinaliza o término e espera o loop sair. Idempotente e seguro entre goroutines.
// O loop sempre observa o sinal no próximo select, então o join é limitado.
func (w *worker) stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == workerJoined {
		return w.err
	}

	w.state = workerTerminating
	w.signal()
	<-w.done
	w.state = workerJoined

	if w.err != nil {
		w.logger.Error("refill worker exited abnormally", zap.String("worker", w.name), zap.Error(w.err))
		return w.err
	}
	w.logger.Debug("refill worker joined", zap.String("worker", w.name))
	return nil
}

func (w *worker) current() workerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// exited indica se o loop já retornou, com ou sem stop().
func (w *worker) exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}
