// Package grpclimit traduz rejeições dos limitadores para status gRPC.
//
// Rejeição (rate ou concorrência) vira codes.ResourceExhausted com a mensagem do erro
// ("rate limited" / "concurrency limited"). Erros do handler passam sem alteração.
package grpclimit

import (
	"context"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MapError converte apenas erros de limitador.
func MapError(err error) error {
	if domain.IsLimited(err) {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	return err
}

// Adapt achata um serviço limitado em um serviço gRPC comum.
func Adapt[Req, Resp any](svc application.Service[Req, application.Outcome[Resp]]) application.Service[Req, Resp] {
	return application.Flatten(svc, MapError)
}

// UnaryServerInterceptor aplica o layer em volta de cada handler unário.
// O limiter (ou pool) do layer é compartilhado por todos os métodos do servidor.
func UnaryServerInterceptor(layer application.Layer[any, any, application.Outcome[any]]) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		inner := application.ServiceFunc[any, any](func(ctx context.Context, req any) (any, error) {
			return handler(ctx, req)
		})
		ctx = application.ContextWithRoute(ctx, "grpc", info.FullMethod)
		return Adapt(layer.Layer(inner)).Call(ctx, req)
	}
}
