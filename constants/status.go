package constants

// JobStatus is the canonical state of one extraction run. The orchestrator
// advances through these in order; no state is ever re-entered, except that
// DISPATCHING may repeat up to the retry bound.
type JobStatus string

// Stable values (logged and stored as these exact strings).
const (
	JobStatusIdle             JobStatus = "IDLE"              // created, nothing dispatched yet
	JobStatusDispatching      JobStatus = "DISPATCHING"       // encoding + sending the request
	JobStatusAwaitingResponse JobStatus = "AWAITING_RESPONSE" // request in flight
	JobStatusParsing          JobStatus = "PARSING"           // locating + normalizing the payload
	JobStatusValidating       JobStatus = "VALIDATING"        // building the typed table
	JobStatusDone             JobStatus = "DONE"              // terminal success
	JobStatusFailed           JobStatus = "FAILED"            // terminal failure
)
