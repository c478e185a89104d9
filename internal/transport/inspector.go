package transport

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"strata/internal/logging"
	"strata/internal/netcdf"
	"strata/internal/opener"
	"strata/internal/pattern"
	"strata/internal/storage"
)

const (
	InspectorService = "strata.v1.Inspector"
	inspectMethod    = "/strata.v1.Inspector/Inspect"
)

// InspectorServer is the server API of the inspector service. Requests carry
// `url`, `file_type` and `load`; responses are dataset summaries.
type InspectorServer interface {
	Inspect(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var inspectorDesc = grpc.ServiceDesc{
	ServiceName: InspectorService,
	HandlerType: (*InspectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Inspect", Handler: inspectHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "strata/v1/inspector.proto",
}

func inspectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InspectorServer).Inspect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: inspectMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InspectorServer).Inspect(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func RegisterInspectorServer(s grpc.ServiceRegistrar, srv InspectorServer) {
	s.RegisterService(&inspectorDesc, srv)
}

// Inspector opens the requested URL and reports its structure.
type Inspector struct {
	Cache storage.Cache
	// AllowLocal permits file:// URLs and bare paths on the server's disk.
	AllowLocal bool
}

func (i *Inspector) Inspect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	url := fields["url"].GetStringValue()
	if url == "" {
		return nil, status.Error(codes.InvalidArgument, "url is required")
	}
	if !i.AllowLocal && opener.IsLocal(url) {
		return nil, status.Errorf(codes.PermissionDenied, "local paths are not served: %s", url)
	}
	ft, err := pattern.ParseFileType(fields["file_type"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s, err := opener.Inspect(ctx, url,
		opener.URLOptions{Cache: i.Cache},
		opener.ArrayOptions{FileType: ft, Load: fields["load"].GetBoolValue()})
	if err != nil {
		logging.L().Warn("inspect failed", "url", url, "err", err)
		return nil, status.Error(codeOf(err), err.Error())
	}
	return toStruct(s)
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, opener.ErrUnknownScheme):
		return codes.InvalidArgument
	case errors.Is(err, opener.ErrUnsupportedFileType), errors.Is(err, netcdf.ErrNotNetCDF):
		return codes.FailedPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Unavailable
	}
}

func toStruct(s netcdf.Summary) (*structpb.Struct, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func fromStruct(in *structpb.Struct) (netcdf.Summary, error) {
	var s netcdf.Summary
	raw, err := protojson.Marshal(in)
	if err != nil {
		return s, err
	}
	return s, json.Unmarshal(raw, &s)
}
