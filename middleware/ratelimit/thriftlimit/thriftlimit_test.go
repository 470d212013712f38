package thriftlimit

import (
	"context"
	"errors"
	"testing"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/apache/thrift/lib/go/thrift"
)

func TestAdapt_MapsRejectionToApplicationException(t *testing.T) {
	lim, err := infra.NewRateLimiter(domain.StrategyAtomicLazy, domain.PerSecond(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := Adapt(application.NewRateLimiterLayer[string, string](lim).Layer(
		application.ServiceFunc[string, string](func(_ context.Context, req string) (string, error) { return req, nil }),
	))

	if _, err := svc.Call(context.Background(), "a"); err != nil {
		t.Fatalf("expected first call to pass, got %v", err)
	}

	_, err = svc.Call(context.Background(), "b")
	var appErr thrift.TApplicationException
	if !errors.As(err, &appErr) {
		t.Fatalf("expected TApplicationException, got %T %v", err, err)
	}
	if appErr.TypeId() != thrift.UNKNOWN_APPLICATION_EXCEPTION {
		t.Fatalf("expected UNKNOWN_APPLICATION_EXCEPTION, got %d", appErr.TypeId())
	}
	if appErr.Error() != "rate limited" {
		t.Fatalf("expected message %q, got %q", "rate limited", appErr.Error())
	}
}

func TestAdapt_InnerErrorUntouched(t *testing.T) {
	boom := errors.New("boom")
	svc := Adapt(application.NewConcurrencyLimiterLayer[string, string](infra.NewAtomicPool(1)).Layer(
		application.ServiceFunc[string, string](func(context.Context, string) (string, error) { return "", boom }),
	))
	if _, err := svc.Call(context.Background(), "a"); err != boom {
		t.Fatalf("expected inner error unchanged, got %v", err)
	}
}

// newCall grava uma chamada "ping" sem argumentos e devolve os protocolos
// posicionados depois do cabeçalho da mensagem, como o processor entrega à função.
func newCall(t *testing.T) (in, out thrift.TProtocol, outBuf *thrift.TMemoryBuffer) {
	t.Helper()
	ctx := context.Background()

	inBuf := thrift.NewTMemoryBuffer()
	outBuf = thrift.NewTMemoryBuffer()
	in = thrift.NewTBinaryProtocolConf(inBuf, nil)
	out = thrift.NewTBinaryProtocolConf(outBuf, nil)

	must := func(err error) {
		if err != nil {
			t.Fatalf("unexpected protocol error: %v", err)
		}
	}
	must(in.WriteMessageBegin(ctx, "ping", thrift.CALL, 7))
	must(in.WriteStructBegin(ctx, "ping_args"))
	must(in.WriteFieldStop(ctx))
	must(in.WriteStructEnd(ctx))
	must(in.WriteMessageEnd(ctx))
	must(in.Flush(ctx))

	if _, _, _, err := in.ReadMessageBegin(ctx); err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	return in, out, outBuf
}

func TestProcessorMiddleware_WritesExceptionOnRejection(t *testing.T) {
	calls := 0
	next := thrift.WrappedTProcessorFunction{
		Wrapped: func(ctx context.Context, seqID int32, in, out thrift.TProtocol) (bool, thrift.TException) {
			calls++
			_ = in.Skip(ctx, thrift.STRUCT)
			_ = in.ReadMessageEnd(ctx)
			return true, nil
		},
	}

	mw := ProcessorMiddleware(application.NewConcurrencyLimiterLayer[Call, bool](infra.NewAtomicPool(0)))
	fn := mw("ping", next)

	in, out, _ := newCall(t)
	ok, exc := fn.Process(context.Background(), 7, in, out)
	if !ok {
		t.Fatalf("expected ok=true on rejection so the server keeps the connection open")
	}
	appErr, isApp := exc.(thrift.TApplicationException)
	if !isApp || appErr.TypeId() != thrift.UNKNOWN_APPLICATION_EXCEPTION {
		t.Fatalf("expected UNKNOWN_APPLICATION_EXCEPTION, got %v", exc)
	}
	if calls != 0 {
		t.Fatalf("expected next not to be called, got %d", calls)
	}

	name, typeID, seqID, err := out.ReadMessageBegin(context.Background())
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if name != "ping" || typeID != thrift.EXCEPTION || seqID != 7 {
		t.Fatalf("unexpected reply header %q %v %d", name, typeID, seqID)
	}
}

func TestProcessorMiddleware_CallsNextWhenAdmitted(t *testing.T) {
	calls := 0
	next := thrift.WrappedTProcessorFunction{
		Wrapped: func(ctx context.Context, seqID int32, in, out thrift.TProtocol) (bool, thrift.TException) {
			calls++
			return true, nil
		},
	}

	fn := ProcessorMiddleware(application.NewConcurrencyLimiterLayer[Call, bool](infra.NewAtomicPool(1)))("ping", next)

	in, out, _ := newCall(t)
	ok, exc := fn.Process(context.Background(), 7, in, out)
	if !ok || exc != nil {
		t.Fatalf("expected admitted call to succeed, got %v %v", ok, exc)
	}
	if calls != 1 {
		t.Fatalf("expected next to be called once, got %d", calls)
	}
}

// pingProcessor é um TProcessor mínimo com uma função "ping" que responde REPLY vazio.
type pingProcessor struct {
	fns map[string]thrift.TProcessorFunction
}

func newPingProcessor() *pingProcessor {
	p := &pingProcessor{fns: make(map[string]thrift.TProcessorFunction)}
	p.fns["ping"] = thrift.WrappedTProcessorFunction{
		Wrapped: func(ctx context.Context, seqID int32, in, out thrift.TProtocol) (bool, thrift.TException) {
			_ = in.Skip(ctx, thrift.STRUCT)
			_ = in.ReadMessageEnd(ctx)
			_ = out.WriteMessageBegin(ctx, "ping", thrift.REPLY, seqID)
			_ = out.WriteStructBegin(ctx, "ping_result")
			_ = out.WriteFieldStop(ctx)
			_ = out.WriteStructEnd(ctx)
			_ = out.WriteMessageEnd(ctx)
			_ = out.Flush(ctx)
			return true, nil
		},
	}
	return p
}

func (p *pingProcessor) ProcessorMap() map[string]thrift.TProcessorFunction { return p.fns }

func (p *pingProcessor) AddToProcessorMap(name string, fn thrift.TProcessorFunction) {
	p.fns[name] = fn
}

func (p *pingProcessor) Process(ctx context.Context, in, out thrift.TProtocol) (bool, thrift.TException) {
	name, _, seqID, err := in.ReadMessageBegin(ctx)
	if err != nil {
		return false, thrift.WrapTException(err)
	}
	return p.fns[name].Process(ctx, seqID, in, out)
}

func TestProcessorMiddleware_RejectionKeepsConnectionServing(t *testing.T) {
	ctx := context.Background()
	lim, err := infra.NewRateLimiter(domain.StrategyAtomicLazy, domain.PerSecond(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	proc := thrift.WrapProcessor(newPingProcessor(), ProcessorMiddleware(application.NewRateLimiterLayer[Call, bool](lim)))

	inBuf, outBuf := thrift.NewTMemoryBuffer(), thrift.NewTMemoryBuffer()
	in := thrift.NewTBinaryProtocolConf(inBuf, nil)
	out := thrift.NewTBinaryProtocolConf(outBuf, nil)

	const calls = 3
	for seq := int32(1); seq <= calls; seq++ {
		_ = in.WriteMessageBegin(ctx, "ping", thrift.CALL, seq)
		_ = in.WriteStructBegin(ctx, "ping_args")
		_ = in.WriteFieldStop(ctx)
		_ = in.WriteStructEnd(ctx)
		_ = in.WriteMessageEnd(ctx)
	}
	if err := in.Flush(ctx); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}

	// mesmo critério do TSimpleServer: ok=false encerra a conexão
	served := 0
	for range calls {
		ok, _ := proc.Process(ctx, in, out)
		if !ok {
			break
		}
		served++
	}
	if served != calls {
		t.Fatalf("expected all %d calls served on the same connection, got %d", calls, served)
	}

	want := []thrift.TMessageType{thrift.REPLY, thrift.EXCEPTION, thrift.EXCEPTION}
	for i, typ := range want {
		_, got, seq, err := out.ReadMessageBegin(ctx)
		if err != nil {
			t.Fatalf("reply %d: unexpected read error: %v", i, err)
		}
		if got != typ || seq != int32(i+1) {
			t.Fatalf("reply %d: expected type %v seq %d, got %v seq %d", i, typ, i+1, got, seq)
		}
		if typ == thrift.EXCEPTION {
			exc := thrift.NewTApplicationException(0, "")
			if err := exc.Read(ctx, out); err != nil {
				t.Fatalf("reply %d: unexpected exception read error: %v", i, err)
			}
			if exc.TypeId() != thrift.UNKNOWN_APPLICATION_EXCEPTION || exc.Error() != "rate limited" {
				t.Fatalf("reply %d: unexpected exception %d %q", i, exc.TypeId(), exc.Error())
			}
		} else if err := out.Skip(ctx, thrift.STRUCT); err != nil {
			t.Fatalf("reply %d: unexpected skip error: %v", i, err)
		}
		_ = out.ReadMessageEnd(ctx)
	}
}
