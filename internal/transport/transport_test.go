package transport

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"strata/internal/netcdf"
	"strata/internal/pattern"
)

func startBufServer(t *testing.T, inspector InspectorServer) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(lis, inspector)
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Stop)

	c, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleFile(t *testing.T) string {
	t.Helper()
	ds := netcdf.NewDataset("remote.nc")
	require.NoError(t, ds.AddDim("lat", 2))
	require.NoError(t, ds.AddDim("lon", 3))
	_, err := ds.AddVar("tas", []string{"lat", "lon"}, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	require.NoError(t, ds.SetAttr("source", "unit test"))

	p := filepath.Join(t.TempDir(), "remote.nc")
	f, err := os.Create(p)
	require.NoError(t, err)
	require.NoError(t, netcdf.Write(f, ds))
	require.NoError(t, f.Close())
	return p
}

func TestInspector_RoundTrip(t *testing.T) {
	c := startBufServer(t, &Inspector{AllowLocal: true})

	s, err := c.Inspect(context.Background(), sampleFile(t), pattern.NetCDF3, true)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Version)
	assert.Equal(t, map[string]int64{"lat": 2, "lon": 3}, s.Dims)
	require.Len(t, s.Vars, 1)
	assert.Equal(t, "tas", s.Vars[0].Name)
	assert.Equal(t, int64(48), s.Bytes)
	assert.Equal(t, "unit test", s.Attrs["source"])
	assert.True(t, s.Loaded)
}

func TestInspector_Errors(t *testing.T) {
	c := startBufServer(t, &Inspector{})
	ctx := context.Background()

	_, err := c.Inspect(ctx, "", pattern.Unknown, false)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.Inspect(ctx, sampleFile(t), pattern.Unknown, false)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = c.Inspect(ctx, "gopher://host/a.nc", pattern.Unknown, false)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestInspector_UnsupportedFormat(t *testing.T) {
	c := startBufServer(t, &Inspector{AllowLocal: true})
	_, err := c.Inspect(context.Background(), sampleFile(t), pattern.Grib, false)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestInspector_DirectCallRejectsBadFileType(t *testing.T) {
	req, err := structpb.NewStruct(map[string]any{"url": "https://x/a.nc", "file_type": "hdf9"})
	require.NoError(t, err)
	_, err = (&Inspector{}).Inspect(context.Background(), req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestHealth(t *testing.T) {
	c := startBufServer(t, &Inspector{})
	ok, err := c.Healthy(context.Background(), InspectorService)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Healthy(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, ok)
}
