package build

import (
	"encoding/json"

	"github.com/nugget/thane-forge/internal/workflow"
)

// testResults is the shape persisted into Build.TestResults: a
// snapshot of what the workflow run actually touched, not a fixed
// test-framework report (this system observes a build/simulate/QA
// pipeline, not a unit test runner).
type testResults struct {
	Success      bool           `json:"success"`
	QAIterations int            `json:"qa_iterations"`
	Artifacts    map[string]any `json:"artifacts,omitempty"`
}

func marshalTestResults(result *workflow.Result) (string, error) {
	tr := testResults{
		Success:      result.Success,
		QAIterations: result.QAIterations,
		Artifacts:    result.Artifacts,
	}
	b, err := json.Marshal(tr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
