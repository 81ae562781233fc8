// Package control serves the badge control API over gRPC. The service is
// registered by hand with protobuf well-known types as messages, so no
// generated code is needed on either side.
package control

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/openbadge/bridge/internal/errors"
	"github.com/openbadge/bridge/internal/orchestrator"
	"github.com/openbadge/bridge/internal/orchestrator/logbook"
	"github.com/openbadge/bridge/internal/trace"
)

// Service and method names.
const (
	ServiceName = "openbadge.control.v1.Control"

	GetStatusMethod  = "/" + ServiceName + "/GetStatus"
	TriggerMethod    = "/" + ServiceName + "/Trigger"
	RecentLogsMethod = "/" + ServiceName + "/RecentLogs"
)

// Bridge is the part of the orchestrator exposed over gRPC.
type Bridge interface {
	Status() orchestrator.Snapshot
	InjectTrigger() error
	RecentLogs(seconds int) []logbook.Entry
}

// ControlServer is the service implementation registered with gRPC.
type ControlServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Trigger(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	RecentLogs(context.Context, *wrapperspb.Int32Value) (*structpb.ListValue, error)
}

// Server implements ControlServer over a Bridge.
type Server struct {
	bridge Bridge
}

var _ ControlServer = (*Server)(nil)

// NewServer creates the service.
func NewServer(bridge Bridge) *Server {
	return &Server{bridge: bridge}
}

// NewGRPCServer returns a gRPC server with tracing and the control service
// registered.
func NewGRPCServer(bridge Bridge, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.UnaryInterceptor(trace.UnaryServerInterceptor())}, opts...)
	s := grpc.NewServer(opts...)
	Register(s, NewServer(bridge))
	return s
}

// Register adds the control service to s.
func Register(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func (s *Server) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := toStruct(s.bridge.Status())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "encode status")
	}
	return st, nil
}

func (s *Server) Trigger(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	ctx, span := trace.StartSpan(ctx, "control_trigger")
	err := s.bridge.InjectTrigger()
	span.Finish(err)
	if err != nil {
		return nil, err
	}
	trace.Logger(ctx).Info("remote trigger queued")
	return &emptypb.Empty{}, nil
}

func (s *Server) RecentLogs(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.ListValue, error) {
	seconds := int(req.GetValue())
	if seconds < 0 {
		return nil, apperrors.Newf(apperrors.CodeInvalidArgument, "invalid seconds %d", seconds)
	}
	entries := s.bridge.RecentLogs(seconds)
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(entries))}
	for _, e := range entries {
		st, err := toStruct(e)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "encode log entry")
		}
		list.Values = append(list.Values, structpb.NewStructValue(st))
	}
	return list, nil
}

// toStruct converts v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes a Struct produced by the server into v.
func FromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetStatusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func triggerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Trigger(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TriggerMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).Trigger(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func recentLogsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).RecentLogs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RecentLogsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).RecentLogs(ctx, req.(*wrapperspb.Int32Value))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the control service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: getStatusHandler},
		{MethodName: "Trigger", Handler: triggerHandler},
		{MethodName: "RecentLogs", Handler: recentLogsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "openbadge/control/v1/control.proto",
}
