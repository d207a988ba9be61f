package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/composite"
	"github.com/forest-guardian/monthly-composites/internal/geometry"
	"github.com/forest-guardian/monthly-composites/internal/report"
	"github.com/forest-guardian/monthly-composites/internal/sentinel"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName     = "composites.v1.CompositeService"
	SummarizeMethod = "/" + ServiceName + "/Summarize"

	// maxYearsPerRequest bounds the work a single call can trigger.
	maxYearsPerRequest = 10
)

// CompositeServiceServer is implemented by Service. Requests and responses
// are google.protobuf.Struct values.
type CompositeServiceServer interface {
	Summarize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var compositeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CompositeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Summarize", Handler: summarizeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "composites/v1/composites.proto",
}

func summarizeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CompositeServiceServer).Summarize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SummarizeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CompositeServiceServer).Summarize(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func RegisterCompositeServiceServer(s grpc.ServiceRegistrar, srv CompositeServiceServer) {
	s.RegisterService(&compositeServiceDesc, srv)
}

// Service runs the compositing pipeline for each Summarize call.
type Service struct {
	source   sentinel.TileSource
	defaults composite.Options
	log      *logrus.Entry
}

// NewService uses defaults for every option the request does not carry.
func NewService(source sentinel.TileSource, defaults composite.Options, log *logrus.Entry) *Service {
	defaults.Progress = nil
	return &Service{source: source, defaults: defaults, log: log}
}

type summarizeRequest struct {
	aoi       *geometry.AOI
	startYear int
	endYear   int
}

func intField(fields map[string]*structpb.Value, key string) (int, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	if n.NumberValue != float64(int(n.NumberValue)) {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return int(n.NumberValue), nil
}

func parseRequest(req *structpb.Struct) (summarizeRequest, error) {
	fields := req.GetFields()
	geojson := fields["aoi_geojson"].GetStringValue()
	if geojson == "" {
		return summarizeRequest{}, fmt.Errorf("aoi_geojson is required")
	}
	aoi, err := geometry.ParseGeoJSON([]byte(geojson), fields["feature_id"].GetStringValue())
	if err != nil {
		return summarizeRequest{}, err
	}
	startYear, err := intField(fields, "start_year")
	if err != nil {
		return summarizeRequest{}, err
	}
	endYear, err := intField(fields, "end_year")
	if err != nil {
		return summarizeRequest{}, err
	}
	if endYear < startYear {
		return summarizeRequest{}, fmt.Errorf("end_year %d is before start_year %d", endYear, startYear)
	}
	if endYear-startYear+1 > maxYearsPerRequest {
		return summarizeRequest{}, fmt.Errorf("at most %d years per request", maxYearsPerRequest)
	}
	return summarizeRequest{aoi: aoi, startYear: startYear, endYear: endYear}, nil
}

func (s *Service) Summarize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	parsed, err := parseRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	opts := s.defaults
	opts.AOI = parsed.aoi
	opts.StartYear = parsed.startYear
	opts.EndYear = parsed.endYear

	runID := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{"run": runID, "aoi": parsed.aoi.ID()})
	compositor, err := composite.New(s.source, opts, log)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	startedAt := time.Now()
	composites, err := compositor.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	summary := report.Build(runID, parsed.aoi.ID(), startedAt, composites)
	log.Info(summary.Headline())
	return summaryToStruct(summary)
}

func stringList(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func summaryToStruct(s report.Summary) (*structpb.Struct, error) {
	months := make([]interface{}, len(s.Months))
	for i, row := range s.Months {
		months[i] = map[string]interface{}{
			"month":         row.Month,
			"status":        row.Status,
			"scene_count":   row.SceneCount,
			"contamination": row.Contamination,
			"is_no_data":    row.IsNoData,
			"mean_ndvi":     row.MeanNDVI,
			"mean_evi":      row.MeanEVI,
			"mean_savi":     row.MeanSAVI,
			"error":         row.Error,
		}
	}
	out, err := structpb.NewStruct(map[string]interface{}{
		"run_id":     s.RunID,
		"aoi":        s.AOI,
		"start_year": s.StartYear,
		"end_year":   s.EndYear,
		"headline":   s.Headline(),
		"succeeded":  stringList(s.Succeeded),
		"empty":      stringList(s.Empty),
		"failed":     stringList(s.Failed),
		"months":     months,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode summary: %v", err)
	}
	return out, nil
}
