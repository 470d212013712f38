package application

import "context"

// Service é a abstração de handler request/response usada pelos decorators.
type Service[Req, Resp any] interface {
	Call(ctx context.Context, req Req) (Resp, error)
}

// ServiceFunc adapta uma função comum a Service.
type ServiceFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

func (f ServiceFunc[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// Outcome carrega o resultado do serviço interno quando o limitador admitiu a chamada.
type Outcome[Resp any] struct {
	Response Resp
	Err      error
}

// Unwrap devolve o par (resposta, erro) do serviço interno.
func (o Outcome[Resp]) Unwrap() (Resp, error) { return o.Response, o.Err }

// Layer constrói um serviço decorado a partir do serviço interno.
type Layer[Req, Resp, Out any] interface {
	Layer(inner Service[Req, Resp]) Service[Req, Out]
}

// Flatten junta as duas camadas de erro de um serviço limitado.
//
// A rejeição do limitador passa por mapErr (quando não nil); o erro do serviço interno
// é devolvido como está.
func Flatten[Req, Resp any](svc Service[Req, Outcome[Resp]], mapErr func(error) error) Service[Req, Resp] {
	return ServiceFunc[Req, Resp](func(ctx context.Context, req Req) (Resp, error) {
		out, err := svc.Call(ctx, req)
		if err != nil {
			var zero Resp
			if mapErr != nil {
				err = mapErr(err)
			}
			return zero, err
		}
		return out.Unwrap()
	})
}
