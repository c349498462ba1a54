package grpc

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/parsascontentcorner/followmanager/internal/auth"
	"github.com/parsascontentcorner/followmanager/internal/discord"
	"github.com/parsascontentcorner/followmanager/internal/inventory"
	"github.com/parsascontentcorner/followmanager/internal/models"
	"github.com/parsascontentcorner/followmanager/internal/service"
	"github.com/parsascontentcorner/followmanager/pkg/logger"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "followmanager.v1.FollowManager"

// Full method names
const (
	MethodGetInventory = "/" + ServiceName + "/GetInventory"
	MethodGetSnapshot  = "/" + ServiceName + "/GetSnapshot"
	MethodSync         = "/" + ServiceName + "/Sync"
)

// ViewSourceGuild selects the source-guild grouping
const ViewSourceGuild = "source-guild"

// InventoryRequest selects how an inventory read is rendered
type InventoryRequest struct {
	View  string `json:"view,omitempty"`
	Query string `json:"q,omitempty"`
}

// InventoryResponse carries exactly one of the two inventory shapes
type InventoryResponse struct {
	Inventory    *models.FollowInventory      `json:"inventory,omitempty"`
	SourceGuilds *models.SourceGuildInventory `json:"sourceGuilds,omitempty"`
}

// SyncRequest triggers a snapshot refresh
type SyncRequest struct{}

// InventoryService is what the gRPC surface needs from the service layer
type InventoryService interface {
	Live(ctx context.Context) (models.FollowInventory, error)
	Sync(ctx context.Context) (*models.SyncResult, error)
	Snapshot(ctx context.Context) (models.FollowInventory, error)
}

// followManagerService is the handler type checked by grpc.RegisterService
type followManagerService interface {
	GetInventory(ctx context.Context, req *InventoryRequest) (*InventoryResponse, error)
	GetSnapshot(ctx context.Context, req *InventoryRequest) (*InventoryResponse, error)
	Sync(ctx context.Context, req *SyncRequest) (*models.SyncResult, error)
}

// FollowManagerServer implements the FollowManager gRPC service
type FollowManagerServer struct {
	service      InventoryService
	gate         *auth.Gate
	serviceGuard *auth.ServiceGuard
	logger       *zap.Logger
}

// NewFollowManagerServer creates the gRPC service over svc
func NewFollowManagerServer(svc InventoryService, gate *auth.Gate, serviceGuard *auth.ServiceGuard, logger *zap.Logger) *FollowManagerServer {
	return &FollowManagerServer{
		service:      svc,
		gate:         gate,
		serviceGuard: serviceGuard,
		logger:       logger,
	}
}

// GetInventory returns the inventory read straight from Discord
func (s *FollowManagerServer) GetInventory(ctx context.Context, req *InventoryRequest) (*InventoryResponse, error) {
	if _, err := s.gate.Authorize(ctx, authorizationFrom(ctx)); err != nil {
		return nil, gateStatus(err)
	}
	if err := checkView(req.View); err != nil {
		return nil, err
	}

	inv, err := s.service.Live(ctx)
	if err != nil {
		logger.FromContext(ctx, s.logger).Warn("live follow inventory failed", zap.Error(err))
		return nil, upstreamStatus(err, service.MessageLiveFailed)
	}

	return render(inv, req), nil
}

// GetSnapshot returns the inventory rebuilt from the persisted snapshot
func (s *FollowManagerServer) GetSnapshot(ctx context.Context, req *InventoryRequest) (*InventoryResponse, error) {
	if _, err := s.gate.Authorize(ctx, authorizationFrom(ctx)); err != nil {
		return nil, gateStatus(err)
	}
	if err := checkView(req.View); err != nil {
		return nil, err
	}

	inv, err := s.service.Snapshot(ctx)
	if err != nil {
		logger.FromContext(ctx, s.logger).Error("failed to read follow inventory snapshot", zap.Error(err))
		return nil, status.Error(codes.Internal, "Failed to load follow inventory snapshot.")
	}

	return render(inv, req), nil
}

// Sync refreshes the persisted snapshot. Only the service role may call it.
func (s *FollowManagerServer) Sync(ctx context.Context, _ *SyncRequest) (*models.SyncResult, error) {
	if err := s.serviceGuard.Authorize(ctx, authorizationFrom(ctx)); err != nil {
		return nil, gateStatus(err)
	}

	result, err := s.service.Sync(ctx)
	if err != nil {
		var replaceErr *service.ReplaceError
		if errors.As(err, &replaceErr) {
			logger.FromContext(ctx, s.logger).Error("snapshot replace failed", zap.Error(err))
			return nil, status.Errorf(codes.Internal, "%s %s", service.MessageReplaceFailed, replaceErr.Err.Error())
		}

		logger.FromContext(ctx, s.logger).Warn("follow inventory sync failed", zap.Error(err))
		return nil, upstreamStatus(err, service.MessageSyncFailed)
	}

	return result, nil
}

// checkView rejects an unknown view before any inventory is loaded
func checkView(view string) error {
	switch view {
	case "", ViewSourceGuild:
		return nil
	default:
		return status.Error(codes.InvalidArgument, "Unknown view.")
	}
}

func render(inv models.FollowInventory, req *InventoryRequest) *InventoryResponse {
	inv = inventory.Filter(inv, req.Query)

	if req.View == ViewSourceGuild {
		grouped := inventory.GroupBySourceGuild(inv)
		return &InventoryResponse{SourceGuilds: &grouped}
	}
	return &InventoryResponse{Inventory: &inv}
}

// authorizationFrom reads the authorization metadata sent by the caller
func authorizationFrom(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func gateStatus(err error) error {
	var gateErr *auth.GateError
	if !errors.As(err, &gateErr) {
		return status.Error(codes.PermissionDenied, "Forbidden.")
	}
	if gateErr.Status == http.StatusUnauthorized {
		return status.Error(codes.Unauthenticated, gateErr.Message)
	}
	return status.Error(codes.PermissionDenied, gateErr.Message)
}

// upstreamStatus classifies err with the same mapping as the HTTP boundaries
func upstreamStatus(err error, fallback string) error {
	message, httpStatus := discord.MapError(err, fallback)

	code := codes.Unavailable
	switch httpStatus {
	case http.StatusBadRequest:
		code = codes.FailedPrecondition
	case http.StatusTooManyRequests:
		code = codes.ResourceExhausted
	}
	return status.Error(code, message)
}

// methodHandler is the grpc.MethodDesc handler signature
type methodHandler = func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error)

// unaryHandler adapts a typed method to the grpc.MethodDesc handler shape
func unaryHandler[Req any, Resp any](fullMethod string, call func(followManagerService, context.Context, *Req) (Resp, error)) methodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(followManagerService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(followManagerService), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var followManagerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*followManagerService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetInventory",
			Handler:    unaryHandler(MethodGetInventory, followManagerService.GetInventory),
		},
		{
			MethodName: "GetSnapshot",
			Handler:    unaryHandler(MethodGetSnapshot, followManagerService.GetSnapshot),
		},
		{
			MethodName: "Sync",
			Handler:    unaryHandler(MethodSync, followManagerService.Sync),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// Client calls the FollowManager service over conn
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient creates a FollowManager client
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// GetInventory calls FollowManager/GetInventory
func (c *Client) GetInventory(ctx context.Context, req *InventoryRequest, opts ...grpc.CallOption) (*InventoryResponse, error) {
	out := new(InventoryResponse)
	if err := c.conn.Invoke(ctx, MethodGetInventory, req, out, append(opts, grpc.CallContentSubtype(codecName))...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSnapshot calls FollowManager/GetSnapshot
func (c *Client) GetSnapshot(ctx context.Context, req *InventoryRequest, opts ...grpc.CallOption) (*InventoryResponse, error) {
	out := new(InventoryResponse)
	if err := c.conn.Invoke(ctx, MethodGetSnapshot, req, out, append(opts, grpc.CallContentSubtype(codecName))...); err != nil {
		return nil, err
	}
	return out, nil
}

// Sync calls FollowManager/Sync
func (c *Client) Sync(ctx context.Context, opts ...grpc.CallOption) (*models.SyncResult, error) {
	out := new(models.SyncResult)
	if err := c.conn.Invoke(ctx, MethodSync, &SyncRequest{}, out, append(opts, grpc.CallContentSubtype(codecName))...); err != nil {
		return nil, err
	}
	return out, nil
}
