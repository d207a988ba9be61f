package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/composite"
	"github.com/forest-guardian/monthly-composites/internal/geometry"
	"github.com/forest-guardian/monthly-composites/internal/logger"
	"github.com/forest-guardian/monthly-composites/internal/sentinel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const plotGeoJSON = `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`

// one degree at 55.5 km per pixel is a 2x2 grid
const resolution = 111_000.0 / 2

func newTestSource(t *testing.T) *sentinel.MemorySource {
	t.Helper()
	aoi, err := geometry.ParseGeoJSON([]byte(plotGeoJSON), "plot")
	require.NoError(t, err)
	grid := aoi.Grid(resolution)
	reflectance := map[string]float64{
		sentinel.BandBlue:  500,
		sentinel.BandGreen: 800,
		sentinel.BandRed:   1000,
		sentinel.BandNIR:   4000,
	}
	return sentinel.NewMemorySource(
		sentinel.UniformScene("a", time.Date(2024, time.May, 4, 10, 0, 0, 0, time.UTC), grid, reflectance, 4, 5),
		sentinel.UniformScene("b", time.Date(2024, time.May, 19, 10, 0, 0, 0, time.UTC), grid, reflectance, 4, 5),
	)
}

func dial(t *testing.T, svc CompositeServiceServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := NewServer(svc, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, server, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		assert.NoError(t, <-done)
	})
	return conn
}

func newService(t *testing.T) *Service {
	opts := composite.DefaultOptions(nil, 0, 0)
	opts.ResolutionMeters = resolution
	opts.MonthTimeout = 5 * time.Second
	return NewService(newTestSource(t), opts, logger.Discard())
}

func TestSummarizeOverGRPC(t *testing.T) {
	client := NewClient(dial(t, newService(t)))

	req, err := SummarizeRequest(plotGeoJSON, "plot", 2024, 2024)
	require.NoError(t, err)
	resp, err := client.Summarize(context.Background(), req)
	require.NoError(t, err)

	fields := resp.GetFields()
	assert.Equal(t, "plot", fields["aoi"].GetStringValue())
	assert.NotEmpty(t, fields["run_id"].GetStringValue())
	assert.Equal(t, 2024.0, fields["start_year"].GetNumberValue())
	assert.Len(t, fields["succeeded"].GetListValue().GetValues(), 1)
	assert.Len(t, fields["empty"].GetListValue().GetValues(), 11)
	assert.Empty(t, fields["failed"].GetListValue().GetValues())

	months := fields["months"].GetListValue().GetValues()
	require.Len(t, months, 12)
	may := months[4].GetStructValue().GetFields()
	assert.Equal(t, "2024-05", may["month"].GetStringValue())
	assert.Equal(t, "ok", may["status"].GetStringValue())
	assert.Equal(t, 2.0, may["scene_count"].GetNumberValue())
	assert.Equal(t, "0.6000", may["mean_ndvi"].GetStringValue())
	assert.True(t, months[0].GetStructValue().GetFields()["is_no_data"].GetBoolValue())
}

func TestSummarizeRejectsInvalidRequests(t *testing.T) {
	client := NewClient(dial(t, newService(t)))

	cases := map[string][]interface{}{
		"missing geometry": {"", 2024, 2024},
		"reversed years":   {plotGeoJSON, 2024, 2023},
		"too many years":   {plotGeoJSON, 2000, 2024},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			req, err := SummarizeRequest(args[0].(string), "", args[1].(int), args[2].(int))
			require.NoError(t, err)
			_, err = client.Summarize(context.Background(), req)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestHealthService(t *testing.T) {
	conn := dial(t, newService(t))

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
