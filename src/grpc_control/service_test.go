package grpc_control

import (
	"context"
	"net"
	"testing"
	"time"

	"market-analytics/src/helpers"
	"market-analytics/src/interfaces"
	"market-analytics/src/logger"
	"market-analytics/src/models"
	"market-analytics/src/refresh"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeRefresher struct {
	full bool
}

func (f *fakeRefresher) Refresh(dataset string) (models.MRefreshAck, error) {
	switch {
	case dataset == "nasdaq":
		return models.MRefreshAck{}, helpers.NewInvalidParameterError("unknown dataset %q", dataset)
	case f.full:
		return models.MRefreshAck{}, refresh.ErrQueueFull
	}
	return models.MRefreshAck{JobID: "job-1", Dataset: dataset, Status: models.StatusQueued}, nil
}

func (f *fakeRefresher) RefreshAll() []models.MRefreshAck {
	ack, _ := f.Refresh("sp500")
	return []models.MRefreshAck{ack}
}

func (f *fakeRefresher) States() []models.MRefreshState {
	return []models.MRefreshState{{Dataset: "sp500", Phase: models.PhaseIdle, SnapshotVersion: 3, Rows: 42}}
}

func (f *fakeRefresher) ErrorCounts() map[string]int {
	return map[string]int{"refresh:sp500": 1}
}

type fakeCache struct{ invalidated []string }

func (f *fakeCache) GetOrCompute(key string, datasets []string, ttl time.Duration, fn func() (interface{}, error)) (interface{}, error) {
	return fn()
}

func (f *fakeCache) InvalidateDataset(dataset string) int {
	f.invalidated = append(f.invalidated, dataset)
	return 2
}

func startControl(t *testing.T, r *fakeRefresher) *ControlClient {
	return startControlWithCache(t, r, nil)
}

func startControlWithCache(t *testing.T, r *fakeRefresher, c interfaces.IResponseCache) *ControlClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterControlServer(srv, NewControlService(r, c, logger.NewSilentLogger()))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewControlClient(conn)
}

func TestRefreshOneDataset(t *testing.T) {
	client := startControl(t, &fakeRefresher{})

	resp, err := client.Refresh(context.Background(), "sp500")
	require.NoError(t, err)
	fields := resp.AsMap()
	assert.Equal(t, "job-1", fields["job_id"])
	assert.Equal(t, models.StatusQueued, fields["status"])
}

func TestRefreshAllWhenEmpty(t *testing.T) {
	client := startControl(t, &fakeRefresher{})

	resp, err := client.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, resp.AsMap()["jobs"], 1)
}

func TestRefreshErrorsMapToCodes(t *testing.T) {
	client := startControl(t, &fakeRefresher{})
	_, err := client.Refresh(context.Background(), "nasdaq")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	full := startControl(t, &fakeRefresher{full: true})
	_, err = full.Refresh(context.Background(), "sp500")
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestStatus(t *testing.T) {
	client := startControl(t, &fakeRefresher{})

	resp, err := client.Status(context.Background())
	require.NoError(t, err)
	fields := resp.AsMap()
	datasets := fields["datasets"].([]interface{})
	require.Len(t, datasets, 1)
	ds := datasets[0].(map[string]interface{})
	assert.Equal(t, "sp500", ds["dataset"])
	assert.Equal(t, 42.0, ds["rows"])
	assert.Equal(t, 1.0, fields["errors"].(map[string]interface{})["refresh:sp500"])
}

func TestInvalidateCacheWithoutCache(t *testing.T) {
	client := startControl(t, &fakeRefresher{})

	_, err := client.InvalidateCache(context.Background(), "sp500")
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.InvalidateCache(context.Background(), "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestInvalidateCache(t *testing.T) {
	fc := &fakeCache{}
	client := startControlWithCache(t, &fakeRefresher{}, fc)

	resp, err := client.InvalidateCache(context.Background(), "sp500")
	require.NoError(t, err)
	assert.Equal(t, 2.0, resp.AsMap()["invalidated"])
	assert.Equal(t, []string{"sp500"}, fc.invalidated)
}
