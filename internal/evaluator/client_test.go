package evaluator

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region mock
type mockService struct {
	ServiceClient

	capsResp *structpb.Struct
	capsErr  error
	capsReq  *structpb.Struct

	loadersResp *structpb.Struct
	loadersErr  error

	inferenceResp *structpb.Struct
	inferenceErr  error
	inferenceReq  *structpb.Struct

	loadReq *structpb.Struct
	loadErr error

	syncErr error
}

func (m *mockService) Capabilities(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.capsReq = in
	return m.capsResp, m.capsErr
}

func (m *mockService) MakeDataLoaders(_ context.Context, _ *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	return m.loadersResp, m.loadersErr
}

func (m *mockService) Inference(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.inferenceReq = in
	return m.inferenceResp, m.inferenceErr
}

func (m *mockService) LoadCheckpoint(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.loadReq = in
	return &structpb.Struct{}, m.loadErr
}

func (m *mockService) Synchronize(_ context.Context, _ *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	return &structpb.Struct{}, m.syncErr
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("new struct: %v", err)
	}
	return s
}

// #endregion mock

// #region constructor-tests
func TestNewLazyConnect(t *testing.T) {
	c, err := New("localhost:0")
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	defer c.Close()
}

func TestNewWithService_CloseWithoutConn(t *testing.T) {
	c := NewWithService(&mockService{})
	if c.svc == nil {
		t.Fatal("expected non-nil service")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}

// #endregion constructor-tests

// #region capabilities-tests
func TestCapabilities_Success(t *testing.T) {
	mock := &mockService{capsResp: mustStruct(t, map[string]any{
		"mixed_precision": true,
		"env_info":        "PyTorch 1.0",
		"device_count":    8,
	})}
	c := NewWithService(mock)

	caps, err := c.Capabilities(context.Background(), Runtime{StartMethod: "spawn", SharingStrategy: "file_system"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := mock.capsReq.GetFields()
	if req["start_method"].GetStringValue() != "spawn" || req["sharing_strategy"].GetStringValue() != "file_system" {
		t.Errorf("unexpected capabilities request %v", mock.capsReq)
	}
	if !caps.MixedPrecision {
		t.Error("expected mixed precision support")
	}
	if caps.EnvInfo != "PyTorch 1.0" {
		t.Errorf("unexpected env info %q", caps.EnvInfo)
	}
	if caps.DeviceCount != 8 {
		t.Errorf("expected 8 devices, got %d", caps.DeviceCount)
	}
}

func TestCapabilities_Error(t *testing.T) {
	mock := &mockService{capsErr: errors.New("unavailable")}
	c := NewWithService(mock)

	_, err := c.Capabilities(context.Background(), Runtime{})
	if !errors.Is(err, mock.capsErr) {
		t.Fatalf("expected wrapped rpc error, got: %v", err)
	}
}

// #endregion capabilities-tests

// #region loaders-tests
func TestMakeDataLoaders_Success(t *testing.T) {
	mock := &mockService{loadersResp: mustStruct(t, map[string]any{
		"count":         1,
		"dataset_names": []any{"coco_2014_minival"},
	})}
	c := NewWithService(mock)

	dl, err := c.MakeDataLoaders(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dl.Count != 1 {
		t.Errorf("expected 1 loader, got %d", dl.Count)
	}
	if len(dl.DatasetNames) != 1 || dl.DatasetNames[0] != "coco_2014_minival" {
		t.Errorf("unexpected dataset names %v", dl.DatasetNames)
	}
}

func TestMakeDataLoaders_MissingCount(t *testing.T) {
	mock := &mockService{loadersResp: &structpb.Struct{}}
	c := NewWithService(mock)

	_, err := c.MakeDataLoaders(context.Background(), false)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

// #endregion loaders-tests

// #region inference-tests
func TestInference_Success(t *testing.T) {
	mock := &mockService{inferenceResp: mustStruct(t, map[string]any{
		"results": map[string]any{
			"bbox": map[string]any{"AP": 0.372, "AP50": 0.581, "note": "ignored"},
			"segm": map[string]any{"AP": 0.339},
		},
	})}
	c := NewWithService(mock)

	res, err := c.Inference(context.Background(), InferenceRequest{
		DatasetName:             "coco_2014_minival",
		IOUTypes:                []string{"bbox", "segm"},
		Device:                  "cuda",
		ExpectedResults:         []ExpectedResult{{Task: "bbox", Metric: "AP", Mean: 0.37, Std: 0.01}},
		ExpectedResultsSigmaTol: 4,
		OutputFolder:            "/out/inference/coco_2014_minival",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ap, ok := res.Metric("bbox", "AP")
	if !ok || ap != 0.372 {
		t.Errorf("expected bbox AP 0.372, got %v (ok=%v)", ap, ok)
	}
	if _, ok := res.Metric("bbox", "note"); ok {
		t.Error("non-numeric fields should be dropped")
	}
	if _, ok := res.Metric("keypoints", "AP"); ok {
		t.Error("expected missing iou type")
	}

	f := mock.inferenceReq.GetFields()
	if f["dataset_name"].GetStringValue() != "coco_2014_minival" {
		t.Errorf("unexpected dataset_name %v", f["dataset_name"])
	}
	if n := len(f["iou_types"].GetListValue().GetValues()); n != 2 {
		t.Errorf("expected 2 iou types on the wire, got %d", n)
	}
	exp := f["expected_results"].GetListValue().GetValues()
	if len(exp) != 1 || len(exp[0].GetListValue().GetValues()) != 4 {
		t.Errorf("expected one four-element expectation, got %v", exp)
	}
}

func TestInference_NoResults(t *testing.T) {
	mock := &mockService{inferenceResp: &structpb.Struct{}}
	c := NewWithService(mock)

	_, err := c.Inference(context.Background(), InferenceRequest{DatasetName: "d"})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestInference_Error(t *testing.T) {
	mock := &mockService{inferenceErr: errors.New("cuda oom")}
	c := NewWithService(mock)

	_, err := c.Inference(context.Background(), InferenceRequest{DatasetName: "d"})
	if !errors.Is(err, mock.inferenceErr) {
		t.Fatalf("expected wrapped rpc error, got %v", err)
	}
}

// #endregion inference-tests

// #region checkpoint-tests
func TestLoadCheckpoint_MapsToCPU(t *testing.T) {
	mock := &mockService{}
	c := NewWithService(mock)

	if err := c.LoadCheckpoint(context.Background(), "/out/model_0001000.pth"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := mock.loadReq.GetFields()
	if f["path"].GetStringValue() != "/out/model_0001000.pth" {
		t.Errorf("unexpected path %v", f["path"])
	}
	if f["map_location"].GetStringValue() != "cpu" {
		t.Errorf("expected map_location cpu, got %v", f["map_location"])
	}
}

func TestSynchronize_Error(t *testing.T) {
	mock := &mockService{syncErr: errors.New("barrier timeout")}
	c := NewWithService(mock)

	if err := c.Synchronize(context.Background()); !errors.Is(err, mock.syncErr) {
		t.Fatalf("expected wrapped barrier error, got %v", err)
	}
}

// #endregion checkpoint-tests

// #region wire-tests
type echoServer struct {
	UnimplementedServiceServer
}

func (echoServer) Capabilities(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"mixed_precision": in.GetFields()["start_method"].GetStringValue() == "spawn",
		"device_count":    2,
	})
}

func dialBufconn(t *testing.T, srv ServiceServer) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterServiceServer(s, srv)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	c := &Client{conn: conn, svc: NewServiceClient(conn)}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestWire_RoundTrip(t *testing.T) {
	c := dialBufconn(t, echoServer{})

	caps, err := c.Capabilities(context.Background(), Runtime{StartMethod: "spawn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !caps.MixedPrecision || caps.DeviceCount != 2 {
		t.Fatalf("unexpected capabilities %+v", caps)
	}
}

func TestWire_Unimplemented(t *testing.T) {
	c := dialBufconn(t, echoServer{})

	err := c.Synchronize(context.Background())
	if status.Code(errors.Unwrap(err)) != codes.Unimplemented {
		t.Fatalf("expected Unimplemented, got %v", err)
	}
}

// #endregion wire-tests
