package behavior

// Failure is a single failed-request event.
type Failure struct {
	RequestType    string      `json:"requestType"`
	Name           string      `json:"name"`
	ResponseTimeMs float64     `json:"responseTimeMs"`
	Exception      string      `json:"exception"`
	Kind           FailureKind `json:"kind"`
}

// Reporter receives failure events. Implementations must be safe for
// concurrent use when shared between virtual users.
type Reporter interface {
	ReportFailure(f Failure)
}

// ReporterFunc adapts a function to a Reporter.
type ReporterFunc func(f Failure)

// ReportFailure calls fn(f).
func (fn ReporterFunc) ReportFailure(f Failure) { fn(f) }

// MultiReporter fans each event out to every reporter in order.
type MultiReporter []Reporter

// ReportFailure implements Reporter.
func (m MultiReporter) ReportFailure(f Failure) {
	for _, r := range m {
		if r != nil {
			r.ReportFailure(f)
		}
	}
}

type discard struct{}

func (discard) ReportFailure(Failure) {}

// Discard drops every event.
var Discard Reporter = discard{}
