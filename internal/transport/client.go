package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"strata/internal/netcdf"
	"strata/internal/pattern"
)

type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to an engine at target ("host:port"). Without options the
// connection is plaintext.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: cc}, nil
}

func (c *Client) Inspect(ctx context.Context, url string, ft pattern.FileType, load bool) (netcdf.Summary, error) {
	req, err := structpb.NewStruct(map[string]any{
		"url":       url,
		"file_type": string(ft),
		"load":      load,
	})
	if err != nil {
		return netcdf.Summary{}, err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, inspectMethod, req, resp); err != nil {
		return netcdf.Summary{}, err
	}
	return fromStruct(resp)
}

// Healthy asks the health service about service ("" for the whole server).
func (c *Client) Healthy(ctx context.Context, service string) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (c *Client) Close() error { return c.conn.Close() }
