package telemetry

import (
	"strings"
	"sync"
)

type Report struct {
	Kind   string
	Id     string
	Params []any
}

// RecorderAPI keeps every report in memory, it exists so tests can assert on telemetry.
type RecorderAPI struct {
	mu      sync.Mutex
	reports []Report
}

func NewRecorderAPI() *RecorderAPI {
	return &RecorderAPI{}
}

func (r *RecorderAPI) add(kind, id string, params []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Kind: kind, Id: id, Params: params})
}

func (r *RecorderAPI) ReportBroken(id string, params ...any) {
	r.add("broken", id, params)
}

func (r *RecorderAPI) ReportWarning(id string, params ...any) {
	r.add("warning", id, params)
}

func (r *RecorderAPI) ReportDebug(msg string, params ...any) {
	r.add("debug", msg, params)
}

func (r *RecorderAPI) ReportCount(id string, count int64) {
	r.add("count", id, []any{count})
}

// Reports returns the reports of the given kind whose id contains substr.
func (r *RecorderAPI) Reports(kind, substr string) []Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Report
	for _, rep := range r.reports {
		if rep.Kind == kind && strings.Contains(rep.Id, substr) {
			out = append(out, rep)
		}
	}
	return out
}
