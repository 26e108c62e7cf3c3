package evaluator

// #region types
// Capabilities describes what the evaluator backend can do.
type Capabilities struct {
	MixedPrecision bool
	EnvInfo        string
	DeviceCount    int
}

// Runtime is the multiprocessing setup the backend applies before any other work.
type Runtime struct {
	StartMethod     string
	SharingStrategy string
}

// ProcessGroup describes how this rank joins the distributed group.
type ProcessGroup struct {
	Backend    string
	InitMethod string
	LocalRank  int
	WorldSize  int
}

// DataLoaders reports the validation loaders the backend built.
type DataLoaders struct {
	Count        int
	DatasetNames []string
}

// ExpectedResult is one [task, metric, mean, std] expectation forwarded to the backend.
type ExpectedResult struct {
	Task   string
	Metric string
	Mean   float64
	Std    float64
}

// InferenceRequest runs one validation dataset through the loaded model.
type InferenceRequest struct {
	DatasetName             string
	IOUTypes                []string
	BoxOnly                 bool
	Device                  string
	ExpectedResults         []ExpectedResult
	ExpectedResultsSigmaTol float64
	OutputFolder            string
}

// InferenceResult holds metrics keyed by iou type, then metric name.
type InferenceResult struct {
	Results map[string]map[string]float64
}

// Metric looks up one metric, e.g. Metric("bbox", "AP").
func (r InferenceResult) Metric(iouType, name string) (float64, bool) {
	m, ok := r.Results[iouType]
	if !ok {
		return 0, false
	}
	v, ok := m[name]
	return v, ok
}

// #endregion types
