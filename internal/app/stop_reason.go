package app

// StopReason records why the daemon is shutting down; it only feeds
// the final log lines.
type StopReason string

const (
	StopUnknown StopReason = "unknown"
	StopSignal  StopReason = "signal"
	StopFatal   StopReason = "fatal_error"
	StopAppStop StopReason = "app_stop"
)
