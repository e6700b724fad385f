package pipeline

// Stage names one phase of the installation pipeline.
type Stage string

const (
	StageProbe    Stage = "probe"
	StageRuntime  Stage = "provision-runtime"
	StageEnv      Stage = "build-environment"
	StageRepo     Stage = "clone-repository"
	StageDeps     Stage = "install-dependencies"
	StageServices Stage = "start-services"
)

// Status is the outcome marker attached to a progress event.
type Status string

const (
	StatusStarted   Status = "started"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ProgressEvent is delivered to the caller's reporter for every stage
// transition. The UI layer that consumes these is outside this core.
type ProgressEvent struct {
	Stage   Stage  `json:"stage"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

// Reporter receives progress events. May be nil.
type Reporter func(ProgressEvent)

// CancelledError reports an interrupted run. Work up to LastCompleted is
// recorded in the state file; nothing from the interrupted stage is.
type CancelledError struct {
	LastCompleted Stage
}

func (e *CancelledError) Error() string {
	if e.LastCompleted == "" {
		return "installation cancelled before any stage completed"
	}
	return "installation cancelled after stage " + string(e.LastCompleted)
}
