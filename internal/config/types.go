package config

import (
	"encoding/json"
	"fmt"
)

// #region config
// Config is the frozen configuration tree handed to the evaluator service.
// JSON keys follow the detection framework's upper-case naming.
type Config struct {
	Model      ModelConfig      `json:"MODEL"`
	Datasets   DatasetsConfig   `json:"DATASETS"`
	DataLoader DataLoaderConfig `json:"DATALOADER"`
	Test       TestConfig       `json:"TEST"`
	DType      string           `json:"DTYPE"`
	AMPVerbose bool             `json:"AMP_VERBOSE"`
	OutputDir  string           `json:"OUTPUT_DIR"`
	Sweep      SweepConfig      `json:"SWEEP"`
}

// ModelConfig holds the MODEL section.
type ModelConfig struct {
	MetaArchitecture string `json:"META_ARCHITECTURE"`
	Device           string `json:"DEVICE"`
	Weight           string `json:"WEIGHT"`
	MaskOn           bool   `json:"MASK_ON"`
	KeypointOn       bool   `json:"KEYPOINT_ON"`
	RetinaNetOn      bool   `json:"RETINANET_ON"`
	RPNOnly          bool   `json:"RPN_ONLY"`
}

// DatasetsConfig holds the DATASETS section.
type DatasetsConfig struct {
	Train []string `json:"TRAIN"`
	Test  []string `json:"TEST"`
}

// DataLoaderConfig holds the DATALOADER section.
// StartMethod and SharingStrategy set up the backend's worker processes.
type DataLoaderConfig struct {
	NumWorkers       int    `json:"NUM_WORKERS"`
	SizeDivisibility int    `json:"SIZE_DIVISIBILITY"`
	StartMethod      string `json:"START_METHOD"`
	SharingStrategy  string `json:"SHARING_STRATEGY"`
}

// TestConfig holds the TEST section.
type TestConfig struct {
	ExpectedResults         []ExpectedResult `json:"EXPECTED_RESULTS"`
	ExpectedResultsSigmaTol float64          `json:"EXPECTED_RESULTS_SIGMA_TOL"`
	ImsPerBatch             int              `json:"IMS_PER_BATCH"`
}

// SweepConfig holds the SWEEP section: where checkpoints live and what gets plotted.
type SweepConfig struct {
	Pattern     string `json:"PATTERN"`
	StepPrefix  string `json:"STEP_PREFIX"`
	PlotFile    string `json:"PLOT_FILE"`
	ArchiveFile string `json:"ARCHIVE_FILE"`
	IOUType     string `json:"IOU_TYPE"`
	Metric      string `json:"METRIC"`
}

// #endregion config

// #region expected-result
// ExpectedResult is one [task, metric, mean, std] expectation.
// The nested form [task, metric, [mean, std]] is accepted on input.
type ExpectedResult struct {
	Task   string
	Metric string
	Mean   float64
	Std    float64
}

// MarshalJSON encodes the flat four-element form.
func (e ExpectedResult) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Task, e.Metric, e.Mean, e.Std})
}

// UnmarshalJSON decodes either the flat or the nested form.
func (e *ExpectedResult) UnmarshalJSON(b []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("expected result: %w", err)
	}
	if len(parts) != 3 && len(parts) != 4 {
		return fmt.Errorf("expected result: want 3 or 4 elements, got %d", len(parts))
	}
	if err := json.Unmarshal(parts[0], &e.Task); err != nil {
		return fmt.Errorf("expected result task: %w", err)
	}
	if err := json.Unmarshal(parts[1], &e.Metric); err != nil {
		return fmt.Errorf("expected result metric: %w", err)
	}
	if len(parts) == 4 {
		if err := json.Unmarshal(parts[2], &e.Mean); err != nil {
			return fmt.Errorf("expected result mean: %w", err)
		}
		if err := json.Unmarshal(parts[3], &e.Std); err != nil {
			return fmt.Errorf("expected result std: %w", err)
		}
		return nil
	}
	var pair [2]float64
	if err := json.Unmarshal(parts[2], &pair); err != nil {
		return fmt.Errorf("expected result [mean, std]: %w", err)
	}
	e.Mean, e.Std = pair[0], pair[1]
	return nil
}

// #endregion expected-result

// #region defaults
// Default returns the built-in configuration every file and override is merged onto.
func Default() Config {
	return Config{
		Model: ModelConfig{
			MetaArchitecture: "GeneralizedRCNN",
			Device:           "cuda",
		},
		Datasets: DatasetsConfig{
			Train: []string{},
			Test:  []string{},
		},
		DataLoader: DataLoaderConfig{
			NumWorkers:      4,
			StartMethod:     "spawn",
			SharingStrategy: "file_system",
		},
		Test: TestConfig{
			ExpectedResults:         []ExpectedResult{},
			ExpectedResultsSigmaTol: 4,
			ImsPerBatch:             8,
		},
		DType:     "float32",
		OutputDir: ".",
		Sweep: SweepConfig{
			Pattern:     "*.pth",
			StepPrefix:  "model_",
			PlotFile:    "check_maps.png",
			ArchiveFile: "check_maps.npz",
			IOUType:     "bbox",
			Metric:      "AP",
		},
	}
}

// #endregion defaults
