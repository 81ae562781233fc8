package trace

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryClientInterceptor injects trace context into outgoing gRPC calls.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = injectMetadata(ctx)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// UnaryServerInterceptor continues the caller's trace (or starts one) and
// logs each control call with its outcome.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		tc := extractMetadata(ctx)
		ctx = WithContext(ctx, tc)

		start := time.Now()
		resp, err := handler(ctx, req)

		log := Logger(ctx).With("method", info.FullMethod, "duration", time.Since(start))
		if err != nil {
			log.Warn("control call failed", "code", status.Code(err).String(), "error", err)
		} else {
			log.Debug("control call")
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(TraceIDKey, tc.TraceID))
		return resp, err
	}
}

func injectMetadata(ctx context.Context) context.Context {
	tc, ok := FromContext(ctx)
	if !ok {
		tc = New()
		ctx = WithContext(ctx, tc)
	}

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		md = metadata.New(nil)
	} else {
		md = md.Copy()
	}

	for k, v := range tc.ToMap() {
		md.Set(k, v)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func extractMetadata(ctx context.Context) Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return New()
	}
	m := make(map[string]string, 2)
	for _, k := range []string{TraceIDKey, SpanIDKey} {
		if v := md.Get(k); len(v) > 0 {
			m[k] = v[0]
		}
	}
	return FromMap(m)
}
