package vecbt

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// gRPC method names served by vecbt-server.
const (
	methodRun      = "/vecbt.v1.BacktestService/Run"
	methodListRuns = "/vecbt.v1.BacktestService/ListRuns"
	methodGetRun   = "/vecbt.v1.BacktestService/GetRun"
)

// GRPCClient talks to the vecbt-server gRPC endpoint.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialGRPC connects to addr without transport security. Extra options are
// appended.
func DialGRPC(addr string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{conn: conn}, nil
}

// Close closes the connection.
func (c *GRPCClient) Close() error { return c.conn.Close() }

// Run runs one backtest.
func (c *GRPCClient) Run(ctx context.Context, req BacktestRequest) (*Run, error) {
	var run Run
	if err := c.invoke(ctx, methodRun, req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns retrieves stored runs, newest first.
func (c *GRPCClient) ListRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	req := map[string]any{"symbol": f.Symbol, "strategy": f.Strategy, "limit": f.Limit}
	var out struct {
		Runs []Run `json:"runs"`
	}
	if err := c.invoke(ctx, methodListRuns, req, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// GetRun retrieves one stored run.
func (c *GRPCClient) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.invoke(ctx, methodGetRun, map[string]any{"id": id}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *GRPCClient) invoke(ctx context.Context, method string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	req, err := structpb.NewStruct(m)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return err
	}
	data, err = json.Marshal(resp.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
