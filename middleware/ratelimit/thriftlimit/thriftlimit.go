// Package thriftlimit traduz rejeições dos limitadores para exceções Thrift.
//
// Thrift não tem um tipo de exceção para sobrecarga: a rejeição vira
// TApplicationException UNKNOWN_APPLICATION_EXCEPTION com a mensagem do erro.
package thriftlimit

import (
	"context"
	"errors"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"

	"github.com/apache/thrift/lib/go/thrift"
)

// MapError converte apenas erros de limitador.
func MapError(err error) error {
	if domain.IsLimited(err) {
		return thrift.NewTApplicationException(thrift.UNKNOWN_APPLICATION_EXCEPTION, err.Error())
	}
	return err
}

// Adapt achata um serviço limitado em um serviço Thrift comum.
func Adapt[Req, Resp any](svc application.Service[Req, application.Outcome[Resp]]) application.Service[Req, Resp] {
	return application.Flatten(svc, MapError)
}

// Call é uma invocação de TProcessorFunction, já com o cabeçalho da mensagem lido.
type Call struct {
	Name  string
	SeqID int32
	In    thrift.TProtocol
	Out   thrift.TProtocol
}

// ProcessorMiddleware aplica o layer em cada função do processor (thrift.WrapProcessor).
//
// Na rejeição os argumentos são descartados e a exceção é escrita como resposta
// EXCEPTION. A função retorna ok=true junto com a exceção, como o código gerado faz
// para erros do handler: com ok=false o servidor encerraria a conexão do cliente.
func ProcessorMiddleware(layer application.Layer[Call, bool, application.Outcome[bool]]) thrift.ProcessorMiddleware {
	return func(name string, next thrift.TProcessorFunction) thrift.TProcessorFunction {
		svc := layer.Layer(application.ServiceFunc[Call, bool](func(ctx context.Context, c Call) (bool, error) {
			ok, exc := next.Process(ctx, c.SeqID, c.In, c.Out)
			if exc != nil {
				return ok, exc
			}
			return ok, nil
		}))

		return thrift.WrappedTProcessorFunction{
			Wrapped: func(ctx context.Context, seqID int32, in, out thrift.TProtocol) (bool, thrift.TException) {
				ctx = application.ContextWithRoute(ctx, "thrift", name)
				res, err := svc.Call(ctx, Call{Name: name, SeqID: seqID, In: in, Out: out})
				if err != nil {
					return true, reject(ctx, name, seqID, in, out, err)
				}
				if res.Err != nil {
					var te thrift.TException
					if errors.As(res.Err, &te) {
						return res.Response, te
					}
					return res.Response, thrift.WrapTException(res.Err)
				}
				return res.Response, nil
			},
		}
	}
}

func reject(ctx context.Context, name string, seqID int32, in, out thrift.TProtocol, err error) thrift.TException {
	exc := thrift.NewTApplicationException(thrift.UNKNOWN_APPLICATION_EXCEPTION, err.Error())

	// erros de I/O aqui só significam que o cliente já foi embora
	_ = in.Skip(ctx, thrift.STRUCT)
	_ = in.ReadMessageEnd(ctx)
	_ = out.WriteMessageBegin(ctx, name, thrift.EXCEPTION, seqID)
	_ = exc.Write(ctx, out)
	_ = out.WriteMessageEnd(ctx)
	_ = out.Flush(ctx)
	return exc
}
