package pipeline

// StageRequest is the FSM input
type StageRequest struct {
	BundlePath string
}

// StageResponse is the FSM output (accumulated across transitions)
type StageResponse struct {
	// From Verify
	Version    string
	BuildSHA   string
	TargetSlot string
	Components int

	// From Stage
	StagedSlot string

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateVerify   = "verify_bundle"
	StateStage    = "stage_slot"
	StateComplete = "complete"
	StateFailed   = "failed"
)

// Terminal statuses
const (
	StatusStaged = "staged"
	StatusFailed = "failed"
)
