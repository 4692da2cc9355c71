package metrics

// Noop discards all metrics. Useful when the listener is disabled and
// in tests.
type Noop struct{}

var _ Sink = Noop{}

func (Noop) MessageSent(bool)     {}
func (Noop) JobFinished(bool)     {}
func (Noop) ScheduleFired(string) {}
func (Noop) ScheduleError()       {}
func (Noop) ActiveSchedules(int)  {}
