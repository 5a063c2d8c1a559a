package job

import "go.jetify.com/typeid"

// tracePrefix tags trace IDs so they're recognizable in log output,
// following the teacher's typeid.TypeID[Prefix] pattern.
type tracePrefix struct{}

func (tracePrefix) Prefix() string { return "job" }

type traceID struct {
	typeid.TypeID[tracePrefix]
}

// newTraceID returns a fresh k-sortable trace id for a Job's log lines.
// It never fails in practice (typeid.New only errors on entropy-source
// failure); on the rare error it degrades to an empty trace id rather
// than blocking job creation.
func newTraceID() string {
	id, err := typeid.New[traceID]()
	if err != nil {
		return ""
	}
	return id.String()
}
