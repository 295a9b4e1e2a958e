package runengine

import "errors"

// Sentinel errors for the engine's closed "Semantics"/"Length" error kinds
// (spec §7). Dispatch-layer callers distinguish these from storage errors
// (which are returned unadorned from internal/writer, already path-enriched)
// by errors.Is.
var (
	ErrUnexpectedRunStop          = errors.New("run stop with no active run")
	ErrRunNameMismatch            = errors.New("run stop name does not match active run")
	ErrStopBeforeStart            = errors.New("run stop precedes run start")
	ErrNoRunForTimestamp          = errors.New("no run found for timestamp")
	ErrInconsistentTimeValueSizes = errors.New("inconsistent time/value sizes")
	ErrMissingAlarmFields         = errors.New("alarm missing name, severity or message")
)
