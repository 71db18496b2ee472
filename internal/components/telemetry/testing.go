package telemetry

import (
	"strings"
	"sync"
)

// Report is a single report recorded by TestAPI.
type Report struct {
	Kind   string
	Id     string
	Params []any
}

// TestAPI records every report it receives so tests can assert on them.
type TestAPI struct {
	mu      *sync.Mutex
	reports *[]Report
	counts  map[string]int64
}

func NewTestAPI() TestAPI {
	return TestAPI{
		mu:      &sync.Mutex{},
		reports: &[]Report{},
		counts:  map[string]int64{},
	}
}

func (t TestAPI) record(kind, id string, params []any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	*t.reports = append(*t.reports, Report{Kind: kind, Id: id, Params: params})
}

func (t TestAPI) ReportBroken(id string, params ...any) {
	t.record("broken", id, params)
}

func (t TestAPI) ReportWarning(id string, params ...any) {
	t.record("warning", id, params)
}

func (t TestAPI) ReportDebug(msg string, params ...any) {
	t.record("debug", msg, params)
}

func (t TestAPI) ReportCount(id string, count int64) {
	t.mu.Lock()
	t.counts[id] = count
	t.mu.Unlock()
	t.record("count", id, []any{count})
}

// Reports returns every recorded report of the given kind ("broken", "warning", "debug", "count")
// whose id contains idSubstr.
func (t TestAPI) Reports(kind, idSubstr string) []Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Report
	for _, r := range *t.reports {
		if r.Kind == kind && strings.Contains(r.Id, idSubstr) {
			out = append(out, r)
		}
	}
	return out
}

// Count returns the last count reported under an id containing idSubstr.
func (t TestAPI) Count(idSubstr string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, n := range t.counts {
		if strings.Contains(id, idSubstr) {
			return n, true
		}
	}
	return 0, false
}
