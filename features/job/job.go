package job

import (
	"encoding/json"
	"time"
)

// HandlerWorkflowRun marks jobs recorded by the run consumer.
const HandlerWorkflowRun = "workflow.run"

// Job is a failed workflow pass kept for inspection and manual retry.
type Job struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Handler    string          `json:"handler"`
	Payload    json.RawMessage `json:"payload"`
	Error      string          `json:"error"`
	Retries    int             `json:"retries"`
	CreatedAt  time.Time       `json:"created_at"`
}
