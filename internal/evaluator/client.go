package evaluator

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrMalformedResponse is returned when a response lacks a field the client depends on.
var ErrMalformedResponse = errors.New("malformed evaluator response")

// #region client-struct
// Client wraps the gRPC connection to the detection framework's evaluator service.
type Client struct {
	conn  *grpc.ClientConn
	svc   ServiceClient
	retry RetryPolicy
}

// #endregion client-struct

// #region constructor
// New connects to the evaluator gRPC server. Calls carry trace context when a
// tracer provider is registered.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{
		conn:  conn,
		svc:   NewServiceClient(conn),
		retry: DefaultRetryPolicy(),
	}, nil
}

// NewWithService creates a Client with an injected service implementation.
// Used for testing without a real gRPC connection. No calls are retried.
func NewWithService(svc ServiceClient) *Client {
	return &Client{svc: svc}
}

// WithRetry replaces the policy applied to Capabilities.
func (c *Client) WithRetry(p RetryPolicy) *Client {
	c.retry = p
	return c
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region capabilities
// Capabilities hands the backend its multiprocessing setup, then asks what it
// supports and collects its environment report. It is the first call of a
// sweep, so an unavailable backend is retried.
func (c *Client) Capabilities(ctx context.Context, rt Runtime) (Capabilities, error) {
	req, err := structpb.NewStruct(map[string]any{
		"start_method":     rt.StartMethod,
		"sharing_strategy": rt.SharingStrategy,
	})
	if err != nil {
		return Capabilities{}, fmt.Errorf("build capabilities request: %w", err)
	}
	var resp *structpb.Struct
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.svc.Capabilities(ctx, req)
		return err
	})
	if err != nil {
		return Capabilities{}, fmt.Errorf("capabilities rpc: %w", err)
	}
	f := resp.GetFields()
	return Capabilities{
		MixedPrecision: f["mixed_precision"].GetBoolValue(),
		EnvInfo:        f["env_info"].GetStringValue(),
		DeviceCount:    int(f["device_count"].GetNumberValue()),
	}, nil
}

// #endregion capabilities

// #region process-group
// InitProcessGroup joins this rank to the distributed group.
func (c *Client) InitProcessGroup(ctx context.Context, pg ProcessGroup) error {
	req, err := structpb.NewStruct(map[string]any{
		"backend":     pg.Backend,
		"init_method": pg.InitMethod,
		"local_rank":  pg.LocalRank,
		"world_size":  pg.WorldSize,
	})
	if err != nil {
		return fmt.Errorf("build init process group request: %w", err)
	}
	if _, err := c.svc.InitProcessGroup(ctx, req); err != nil {
		return fmt.Errorf("init process group rpc: %w", err)
	}
	return nil
}

// Synchronize blocks until every rank reaches the barrier.
func (c *Client) Synchronize(ctx context.Context) error {
	if _, err := c.svc.Synchronize(ctx, &structpb.Struct{}); err != nil {
		return fmt.Errorf("synchronize rpc: %w", err)
	}
	return nil
}

// #endregion process-group

// #region model
// BuildModel constructs the detection model from the frozen config and moves it to device.
func (c *Client) BuildModel(ctx context.Context, cfg map[string]any, device string) error {
	req, err := structpb.NewStruct(map[string]any{
		"config": cfg,
		"device": device,
	})
	if err != nil {
		return fmt.Errorf("build model request: %w", err)
	}
	if _, err := c.svc.BuildModel(ctx, req); err != nil {
		return fmt.Errorf("build model rpc: %w", err)
	}
	return nil
}

// InitMixedPrecision sets up half precision on the backend.
func (c *Client) InitMixedPrecision(ctx context.Context, enabled, verbose bool) error {
	req, err := structpb.NewStruct(map[string]any{
		"enabled": enabled,
		"verbose": verbose,
	})
	if err != nil {
		return fmt.Errorf("build mixed precision request: %w", err)
	}
	if _, err := c.svc.InitMixedPrecision(ctx, req); err != nil {
		return fmt.Errorf("init mixed precision rpc: %w", err)
	}
	return nil
}

// LoadCheckpoint loads the model weights stored at path. Tensors are mapped to CPU first.
func (c *Client) LoadCheckpoint(ctx context.Context, path string) error {
	req, err := structpb.NewStruct(map[string]any{
		"path":         path,
		"map_location": "cpu",
	})
	if err != nil {
		return fmt.Errorf("build load checkpoint request: %w", err)
	}
	if _, err := c.svc.LoadCheckpoint(ctx, req); err != nil {
		return fmt.Errorf("load checkpoint rpc: %w", err)
	}
	return nil
}

// #endregion model

// #region data-loaders
// MakeDataLoaders builds the validation loaders.
func (c *Client) MakeDataLoaders(ctx context.Context, distributed bool) (DataLoaders, error) {
	req, err := structpb.NewStruct(map[string]any{
		"is_train":       false,
		"is_distributed": distributed,
	})
	if err != nil {
		return DataLoaders{}, fmt.Errorf("build data loaders request: %w", err)
	}
	resp, err := c.svc.MakeDataLoaders(ctx, req)
	if err != nil {
		return DataLoaders{}, fmt.Errorf("make data loaders rpc: %w", err)
	}
	f := resp.GetFields()
	countVal, ok := f["count"]
	if !ok {
		return DataLoaders{}, fmt.Errorf("%w: data loaders without count", ErrMalformedResponse)
	}
	out := DataLoaders{Count: int(countVal.GetNumberValue())}
	for _, v := range f["dataset_names"].GetListValue().GetValues() {
		out.DatasetNames = append(out.DatasetNames, v.GetStringValue())
	}
	return out, nil
}

// #endregion data-loaders

// #region inference
// Inference evaluates the loaded model on one dataset and returns its metrics.
func (c *Client) Inference(ctx context.Context, in InferenceRequest) (InferenceResult, error) {
	iouTypes := make([]any, len(in.IOUTypes))
	for i, t := range in.IOUTypes {
		iouTypes[i] = t
	}
	expected := make([]any, len(in.ExpectedResults))
	for i, e := range in.ExpectedResults {
		expected[i] = []any{e.Task, e.Metric, e.Mean, e.Std}
	}

	req, err := structpb.NewStruct(map[string]any{
		"dataset_name":               in.DatasetName,
		"iou_types":                  iouTypes,
		"box_only":                   in.BoxOnly,
		"device":                     in.Device,
		"expected_results":           expected,
		"expected_results_sigma_tol": in.ExpectedResultsSigmaTol,
		"output_folder":              in.OutputFolder,
	})
	if err != nil {
		return InferenceResult{}, fmt.Errorf("build inference request: %w", err)
	}

	resp, err := c.svc.Inference(ctx, req)
	if err != nil {
		return InferenceResult{}, fmt.Errorf("inference rpc: %w", err)
	}

	results := resp.GetFields()["results"].GetStructValue()
	if results == nil {
		return InferenceResult{}, fmt.Errorf("%w: inference without results", ErrMalformedResponse)
	}
	out := InferenceResult{Results: make(map[string]map[string]float64, len(results.GetFields()))}
	for iouType, metrics := range results.GetFields() {
		m := make(map[string]float64)
		for name, v := range metrics.GetStructValue().GetFields() {
			if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
				continue
			}
			m[name] = v.GetNumberValue()
		}
		out.Results[iouType] = m
	}
	return out, nil
}

// #endregion inference
