package grpc_control

import (
	"context"
	"fmt"
	"time"

	"resilient-feed/src/interfaces"
	"resilient-feed/src/logger"
	"resilient-feed/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const controlServiceName = "resilientfeed.control.v1.ControlService"

// ControlDeps are what the control service reads and drives. Realtime is nil
// when the push client is disabled.
type ControlDeps struct {
	Breakers     interfaces.IBreakerStatus
	Health       interfaces.IHealthStatus
	Realtime     interfaces.IRealtimeControl
	Orchestrator interfaces.IRequester
}

// -----------------------------------------------------------------------------
// ControlService Implementation
// -----------------------------------------------------------------------------

type ControlService struct {
	Name   string
	deps   ControlDeps
	logger *logger.Logger
	now    func() time.Time
}

// NewControlService creates a new ControlService instance
func NewControlService(deps ControlDeps, log *logger.Logger) *ControlService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ControlService{
		Name:   "GRPCControlService",
		deps:   deps,
		logger: log,
		now:    time.Now,
	}
}

// -----------------------------------------------------------------------------
// Status
// -----------------------------------------------------------------------------

// GetStatus returns breaker, health and realtime snapshots in one call.
func (s *ControlService) GetStatus(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	response := &StatusResponse{
		Overall:   s.deps.Health.GetOverallHealth(),
		Health:    s.deps.Health.GetHealthStatus(),
		Breakers:  s.deps.Breakers.Snapshot(),
		Timestamp: s.now().Unix(),
	}

	if s.deps.Realtime != nil {
		status := s.deps.Realtime.GetConnectionStatus()
		response.Connection = &status
		response.Subscriptions = s.deps.Realtime.Subscriptions()
	}
	return response, nil
}

// -----------------------------------------------------------------------------

// CheckHealth runs one health cycle now and returns its report.
func (s *ControlService) CheckHealth(ctx context.Context, req *CheckHealthRequest) (*models.MHealthReport, error) {
	s.logger.Info("%s : received CheckHealth request", s.Name)
	report := s.deps.Health.CheckNow(ctx)
	return &report, nil
}

// -----------------------------------------------------------------------------
// Realtime subscriptions
// -----------------------------------------------------------------------------

// Subscribe adds or updates a realtime subscription
func (s *ControlService) Subscribe(ctx context.Context, req *SubscribeRequest) (*ControlResponse, error) {
	s.logger.Info("%s : received Subscribe request for %s", s.Name, req.Topic)

	if failure := s.checkRealtime(req.Topic); failure != nil {
		return failure, nil
	}

	s.deps.Realtime.Subscribe(req.Topic, req.Params)
	return s.success(fmt.Sprintf("Subscribed to '%s'", req.Topic)), nil
}

// Unsubscribe removes a realtime subscription
func (s *ControlService) Unsubscribe(ctx context.Context, req *UnsubscribeRequest) (*ControlResponse, error) {
	s.logger.Info("%s : received Unsubscribe request for %s", s.Name, req.Topic)

	if failure := s.checkRealtime(req.Topic); failure != nil {
		return failure, nil
	}

	s.deps.Realtime.Unsubscribe(req.Topic)
	return s.success(fmt.Sprintf("Unsubscribed from '%s'", req.Topic)), nil
}

func (s *ControlService) checkRealtime(topic string) *ControlResponse {
	if s.deps.Realtime == nil {
		return s.failure("Realtime client is disabled", "REALTIME_DISABLED")
	}
	if topic == "" {
		s.logger.Error("%s : subscription call with empty topic", s.Name)
		return s.failure("Topic cannot be empty", "INVALID_REQUEST")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Data
// -----------------------------------------------------------------------------

// Request performs one orchestrated request. It never fails: degraded
// answers are reported through the result source.
func (s *ControlService) Request(ctx context.Context, req *DataRequest) (*models.MResult, error) {
	result := s.deps.Orchestrator.Request(ctx, req.Provider, req.Endpoint, req.Params, !req.NoCache)
	return &result, nil
}

// -----------------------------------------------------------------------------

func (s *ControlService) success(message string) *ControlResponse {
	return &ControlResponse{Success: true, Message: message, Timestamp: s.now().Unix()}
}

func (s *ControlService) failure(message, code string) *ControlResponse {
	return &ControlResponse{Success: false, Message: message, Timestamp: s.now().Unix(), ErrorCode: code}
}

// -----------------------------------------------------------------------------
// Service registration
// -----------------------------------------------------------------------------

// controlServer is the method set the service descriptor dispatches to.
type controlServer interface {
	GetStatus(context.Context, *StatusRequest) (*StatusResponse, error)
	CheckHealth(context.Context, *CheckHealthRequest) (*models.MHealthReport, error)
	Subscribe(context.Context, *SubscribeRequest) (*ControlResponse, error)
	Unsubscribe(context.Context, *UnsubscribeRequest) (*ControlResponse, error)
	Request(context.Context, *DataRequest) (*models.MResult, error)
}

// unaryHandler adapts a typed method to grpc.MethodHandler. Requests and
// responses are Structs on the wire; interceptors see the Struct request.
func unaryHandler[Req any, Resp any](method string, call func(controlServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	invoke := func(srv any, ctx context.Context, message *structpb.Struct) (*structpb.Struct, error) {
		in := new(Req)
		if err := requestFromWire(message, in); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		out, err := call(srv.(controlServer), ctx, in)
		if err != nil {
			return nil, err
		}
		return toWire(out)
	}

	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		message := &structpb.Struct{}
		if err := dec(message); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return invoke(srv, ctx, message)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controlServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return invoke(srv, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, message, info, handler)
	}
}

var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: controlServiceName,
	HandlerType: (*controlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: unaryHandler("GetStatus", controlServer.GetStatus)},
		{MethodName: "CheckHealth", Handler: unaryHandler("CheckHealth", controlServer.CheckHealth)},
		{MethodName: "Subscribe", Handler: unaryHandler("Subscribe", controlServer.Subscribe)},
		{MethodName: "Unsubscribe", Handler: unaryHandler("Unsubscribe", controlServer.Unsubscribe)},
		{MethodName: "Request", Handler: unaryHandler("Request", controlServer.Request)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "resilientfeed/control/v1/control.proto",
}

// RegisterControlService registers the control service on server.
func RegisterControlService(server grpc.ServiceRegistrar, service *ControlService) {
	server.RegisterService(&controlServiceDesc, service)
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// ControlClient calls the control service over an existing connection.
type ControlClient struct {
	conn grpc.ClientConnInterface
}

func NewControlClient(conn grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{conn: conn}
}

func (c *ControlClient) invoke(ctx context.Context, method string, in, out any) error {
	request, err := toWire(in)
	if err != nil {
		return err
	}
	response := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, "/"+controlServiceName+"/"+method, request, response); err != nil {
		return err
	}
	return fromWire(response, out)
}

func (c *ControlClient) GetStatus(ctx context.Context) (*StatusResponse, error) {
	out := new(StatusResponse)
	return out, c.invoke(ctx, "GetStatus", &StatusRequest{}, out)
}

func (c *ControlClient) CheckHealth(ctx context.Context) (*models.MHealthReport, error) {
	out := new(models.MHealthReport)
	return out, c.invoke(ctx, "CheckHealth", &CheckHealthRequest{}, out)
}

func (c *ControlClient) Subscribe(ctx context.Context, topic string, params []string) (*ControlResponse, error) {
	out := new(ControlResponse)
	return out, c.invoke(ctx, "Subscribe", &SubscribeRequest{Topic: topic, Params: params}, out)
}

func (c *ControlClient) Unsubscribe(ctx context.Context, topic string) (*ControlResponse, error) {
	out := new(ControlResponse)
	return out, c.invoke(ctx, "Unsubscribe", &UnsubscribeRequest{Topic: topic}, out)
}

func (c *ControlClient) Request(ctx context.Context, req *DataRequest) (*models.MResult, error) {
	out := new(models.MResult)
	return out, c.invoke(ctx, "Request", req, out)
}
