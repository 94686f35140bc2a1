package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/infrastructure/pubsub"
	"security-monitor-service/internal/logging"
)

const (
	serviceName = "monitor.v1.Diagnostics"

	getStatsMethod     = "/" + serviceName + "/GetStats"
	listAlertsMethod   = "/" + serviceName + "/ListAlerts"
	acknowledgeMethod  = "/" + serviceName + "/AcknowledgeAlert"
	resolveMethod      = "/" + serviceName + "/ResolveAlert"
	subscribeMethod    = "/" + serviceName + "/Subscribe"
	subscriptionBuffer = 256

	// ActorHeader carries the acting user for alert transitions.
	ActorHeader  = "x-user"
	defaultActor = "system"
)

// DiagnosticsServer is the server API of monitor.v1.Diagnostics.
type DiagnosticsServer interface {
	GetStats(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	ListAlerts(ctx context.Context, prioritized *wrapperspb.BoolValue) (*structpb.ListValue, error)
	AcknowledgeAlert(ctx context.Context, id *wrapperspb.Int64Value) (*structpb.Struct, error)
	ResolveAlert(ctx context.Context, id *wrapperspb.Int64Value) (*structpb.Struct, error)
	Subscribe(pattern *wrapperspb.StringValue, stream grpc.ServerStream) error
}

// ServiceDesc describes monitor.v1.Diagnostics. Payloads are well-known protobuf
// types so no generated code is needed on either side.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DiagnosticsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStats", Handler: getStatsHandler},
		{MethodName: "ListAlerts", Handler: listAlertsHandler},
		{MethodName: "AcknowledgeAlert", Handler: acknowledgeHandler},
		{MethodName: "ResolveAlert", Handler: resolveHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "monitor/v1/diagnostics.proto",
}

func RegisterDiagnosticsServer(registrar grpc.ServiceRegistrar, srv DiagnosticsServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

func getStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiagnosticsServer).GetStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getStatsMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(DiagnosticsServer).GetStats(ctx, req.(*emptypb.Empty))
	})
}

func listAlertsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BoolValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiagnosticsServer).ListAlerts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listAlertsMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(DiagnosticsServer).ListAlerts(ctx, req.(*wrapperspb.BoolValue))
	})
}

func acknowledgeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiagnosticsServer).AcknowledgeAlert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: acknowledgeMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(DiagnosticsServer).AcknowledgeAlert(ctx, req.(*wrapperspb.Int64Value))
	})
}

func resolveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiagnosticsServer).ResolveAlert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resolveMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(DiagnosticsServer).ResolveAlert(ctx, req.(*wrapperspb.Int64Value))
	})
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DiagnosticsServer).Subscribe(in, stream)
}

// StatsProvider builds the diagnostics snapshot.
type StatsProvider interface {
	Diagnostics(ctx context.Context) (domain.Diagnostics, error)
}

// AlertService is the alert lifecycle exposed over gRPC.
type AlertService interface {
	ListActive(ctx context.Context) ([]domain.Alert, error)
	ListActivePrioritized(ctx context.Context) ([]domain.Alert, error)
	Acknowledge(ctx context.Context, id int64, actor string) (domain.Alert, error)
	Resolve(ctx context.Context, id int64, actor string) (domain.Alert, error)
}

// Subscriber opens broker subscriptions.
type Subscriber interface {
	Subscribe(pattern string, buffer int) (*pubsub.Subscription, error)
}

// Handler implements DiagnosticsServer on top of the application services.
type Handler struct {
	stats  StatsProvider
	alerts AlertService
	broker Subscriber
	logger *logging.Logger
}

func NewHandler(stats StatsProvider, alerts AlertService, broker Subscriber, logger *logging.Logger) *Handler {
	return &Handler{stats: stats, alerts: alerts, broker: broker, logger: logger.With("component", "grpc")}
}

func (h *Handler) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if h.stats == nil {
		return nil, status.Error(codes.Unimplemented, "stats are not configured")
	}
	diag, err := h.stats.Diagnostics(ctx)
	if err != nil {
		return nil, toStatus(err, "get stats")
	}
	return toStruct(diag)
}

func (h *Handler) ListAlerts(ctx context.Context, prioritized *wrapperspb.BoolValue) (*structpb.ListValue, error) {
	if h.alerts == nil {
		return nil, status.Error(codes.Unimplemented, "alerts are not configured")
	}
	list := h.alerts.ListActive
	if prioritized.GetValue() {
		list = h.alerts.ListActivePrioritized
	}
	alerts, err := list(ctx)
	if err != nil {
		return nil, toStatus(err, "list alerts")
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	out := new(structpb.ListValue)
	if err := convert(alerts, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *Handler) AcknowledgeAlert(ctx context.Context, id *wrapperspb.Int64Value) (*structpb.Struct, error) {
	return h.transition(ctx, id, "acknowledge alert", func(ctx context.Context, id int64, actor string) (domain.Alert, error) {
		return h.alerts.Acknowledge(ctx, id, actor)
	})
}

func (h *Handler) ResolveAlert(ctx context.Context, id *wrapperspb.Int64Value) (*structpb.Struct, error) {
	return h.transition(ctx, id, "resolve alert", func(ctx context.Context, id int64, actor string) (domain.Alert, error) {
		return h.alerts.Resolve(ctx, id, actor)
	})
}

func (h *Handler) transition(ctx context.Context, id *wrapperspb.Int64Value, op string,
	apply func(ctx context.Context, id int64, actor string) (domain.Alert, error)) (*structpb.Struct, error) {
	if h.alerts == nil {
		return nil, status.Error(codes.Unimplemented, "alerts are not configured")
	}
	if id.GetValue() <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "invalid alert id: %d", id.GetValue())
	}
	alert, err := apply(ctx, id.GetValue(), actorFrom(ctx))
	if err != nil {
		return nil, toStatus(err, op)
	}
	return toStruct(alert)
}

// Subscribe streams broker messages matching the requested pattern until the
// client goes away or the broker closes the subscription.
func (h *Handler) Subscribe(pattern *wrapperspb.StringValue, stream grpc.ServerStream) error {
	if h.broker == nil {
		return status.Error(codes.Unimplemented, "streaming is not configured")
	}
	p := pattern.GetValue()
	if p == "" {
		p = domain.TopicAll
	}
	if !pubsub.ValidPattern(p) {
		return status.Errorf(codes.InvalidArgument, "invalid topic pattern %q", p)
	}

	ctx := stream.Context()
	log := h.loggerFor(ctx)

	sub, err := h.broker.Subscribe(p, subscriptionBuffer)
	if err != nil {
		return toStatus(err, "subscribe")
	}
	defer sub.Close()
	log.Info("subscription opened", "pattern", p)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return status.Error(codes.Unavailable, "subscription closed")
			}
			out, err := toStruct(msg)
			if err != nil {
				log.Warn("drop unencodable message", logging.AttachError(err, "topic", msg.Topic)...)
				continue
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		}
	}
}

// loggerFor prefers the request-scoped logger installed by the server interceptors.
func (h *Handler) loggerFor(ctx context.Context) *logging.Logger {
	if l, ok := logging.FromContext(ctx); ok {
		return l.With("component", "grpc")
	}
	return h.logger
}

func actorFrom(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return defaultActor
	}
	for _, v := range md.Get(ActorHeader) {
		if actor := strings.TrimSpace(v); actor != "" {
			return actor
		}
	}
	return defaultActor
}

func toStatus(err error, op string) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s: %v", op, err)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s: %v", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s: %v", op, err)
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

func toStruct(v any) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := convert(v, out); err != nil {
		return nil, err
	}
	return out, nil
}

// convert goes through the JSON encoding so gRPC payloads match the REST ones.
func convert(v any, out proto.Message) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return status.Errorf(codes.Internal, "encode payload: %v", err)
	}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return status.Errorf(codes.Internal, "encode payload: %v", err)
	}
	return nil
}

var _ DiagnosticsServer = (*Handler)(nil)
