package rpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const maxMessageSize = 10 * 1024 * 1024

func loggingInterceptor(log *logrus.Entry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		entry := log.WithFields(logrus.Fields{
			"method":   info.FullMethod,
			"code":     status.Code(err).String(),
			"duration": time.Since(start).String(),
		})
		if err != nil {
			entry.WithError(err).Warn("Request failed")
		} else {
			entry.Debug("Request served")
		}
		return resp, err
	}
}

// NewServer registers the composite service and the standard health service.
func NewServer(svc CompositeServiceServer, log *logrus.Entry) *grpc.Server {
	server := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMessageSize),
		grpc.MaxSendMsgSize(maxMessageSize),
		grpc.UnaryInterceptor(loggingInterceptor(log)),
	)
	RegisterCompositeServiceServer(server, svc)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	return server
}

// Serve blocks until lis fails or ctx is done, then stops gracefully.
func Serve(ctx context.Context, server *grpc.Server, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		server.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("gRPC server stopped: %w", err)
		}
		return nil
	}
}

// Client calls the composite service over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Summarize(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SummarizeMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SummarizeRequest builds the request Struct for an AOI GeoJSON document.
func SummarizeRequest(aoiGeoJSON, featureID string, startYear, endYear int) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"aoi_geojson": aoiGeoJSON,
		"start_year":  startYear,
		"end_year":    endYear,
	}
	if featureID != "" {
		fields["feature_id"] = featureID
	}
	return structpb.NewStruct(fields)
}
