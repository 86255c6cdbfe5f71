package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"vecbt/internal/store"
)

// BacktestServiceName is the fully qualified gRPC service name.
const BacktestServiceName = "vecbt.v1.BacktestService"

// Full method names, for clients calling grpc.ClientConn.Invoke.
const (
	MethodRun      = "/" + BacktestServiceName + "/Run"
	MethodListRuns = "/" + BacktestServiceName + "/ListRuns"
	MethodGetRun   = "/" + BacktestServiceName + "/GetRun"
)

// BacktestService exposes backtest runs over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON documents as the HTTP
// API, so request and response shapes match BacktestRequest and RunJSON.
type BacktestService struct {
	srv *Server
}

// RegisterGRPC registers the service on gs.
func (b *BacktestService) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&backtestServiceDesc, b)
}

// Run executes one backtest.
func (b *BacktestService) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req BacktestRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	cfg, err := req.RunConfig(b.srv.defaults.Backtest)
	if err != nil {
		return nil, grpcError(err)
	}
	out, err := b.srv.engine.Backtest(ctx, cfg)
	if err != nil {
		return nil, grpcError(err)
	}
	run := runJSON(out.Record)
	run.Metrics = metricsJSON(out.Metrics)
	return toStruct(run)
}

// listRunsRequest is the ListRuns request document.
type listRunsRequest struct {
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy"`
	Limit    int    `json:"limit"`
}

// ListRuns returns stored runs under a "runs" key.
func (b *BacktestService) ListRuns(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listRunsRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	runs, err := b.srv.engine.ListRuns(ctx, store.RunFilter{Symbol: req.Symbol, Strategy: req.Strategy, Limit: req.Limit})
	if err != nil {
		return nil, grpcError(err)
	}
	out := make([]RunJSON, len(runs))
	for i, r := range runs {
		out[i] = runJSON(r)
	}
	return toStruct(map[string]any{"runs": out})
}

// GetRun returns the run named by the "id" field.
func (b *BacktestService) GetRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := in.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	run, err := b.srv.engine.GetRun(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(runJSON(*run))
}

// backtestServer is the handler type the service descriptor dispatches to.
type backtestServer interface {
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ backtestServer = (*BacktestService)(nil)

func unaryHandler(method string, call func(backtestServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(backtestServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + BacktestServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(backtestServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var backtestServiceDesc = grpc.ServiceDesc{
	ServiceName: BacktestServiceName,
	HandlerType: (*backtestServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Run", backtestServer.Run),
		unaryHandler("ListRuns", backtestServer.ListRuns),
		unaryHandler("GetRun", backtestServer.GetRun),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vecbt/v1/backtest.proto",
}

// grpcError maps domain errors onto gRPC status codes, mirroring statusFor.
func grpcError(err error) error {
	switch statusFor(err) {
	case http.StatusBadRequest:
		return status.Error(codes.InvalidArgument, err.Error())
	case http.StatusNotFound:
		return status.Error(codes.NotFound, err.Error())
	case http.StatusUnprocessableEntity:
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		return nil
	}
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// toStruct encodes v into a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("building response: %v", err))
	}
	return s, nil
}
