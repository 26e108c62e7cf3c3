package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/detsweep/internal/config"
	"github.com/danielpatrickdp/detsweep/internal/eval"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Config          FixtureConfig           `json:"config"`
	Evaluations     []FixtureEvaluation     `json:"evaluations"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureConfig carries the expectations a replay checks against.
type FixtureConfig struct {
	ExpectedResults []config.ExpectedResult `json:"expected_results"`
	SigmaTol        float64                 `json:"sigma_tol"`
}

// FixtureEvaluation mirrors replay.Evaluation with JSON tags.
type FixtureEvaluation struct {
	Path     string                        `json:"path"`
	Step     float64                       `json:"step"`
	AP       float64                       `json:"ap"`
	Metrics  map[string]map[string]float64 `json:"metrics"`
	StoredOK bool                          `json:"stored_ok"`
}

// FixtureExpectedResult captures the expected action per checkpoint.
type FixtureExpectedResult struct {
	Path   string `json:"path"`
	Action string `json:"action"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// ToEvaluation converts a FixtureEvaluation to a domain Evaluation.
func (fe *FixtureEvaluation) ToEvaluation() Evaluation {
	return Evaluation{
		Path:     fe.Path,
		Step:     fe.Step,
		AP:       fe.AP,
		Metrics:  fe.Metrics,
		StoredOK: fe.StoredOK,
	}
}

// FromEvaluation converts a domain Evaluation for serialization.
func FromEvaluation(ev Evaluation) FixtureEvaluation {
	return FixtureEvaluation{
		Path:     ev.Path,
		Step:     ev.Step,
		AP:       ev.AP,
		Metrics:  ev.Metrics,
		StoredOK: ev.StoredOK,
	}
}

// ToReplayConfig converts a FixtureConfig to a domain ReplayConfig.
func (fc *FixtureConfig) ToReplayConfig() ReplayConfig {
	return ReplayConfig{EvalConfig: eval.ConfigFromExpected(fc.ExpectedResults, fc.SigmaTol)}
}

// #endregion fixture-loader
