package harness

import (
	"github.com/roach88/loopexit/internal/forkcount"
	"github.com/roach88/loopexit/internal/searcher"
	"github.com/roach88/loopexit/internal/trace"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Session is the id the run was stored under.
	Session string `json:"session"`

	// ProgramHash fingerprints the program model the run used.
	ProgramHash string `json:"program_hash"`

	// Selected lists the names returned by select steps, in order.
	Selected []string `json:"selected"`

	// Trace holds every searcher decision, in order.
	Trace []trace.Event `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Stats are the searcher counters after the last step.
	Stats searcher.Stats `json:"stats"`

	// ForkSites are the fork counts left after the last step.
	ForkSites []forkcount.Site `json:"fork_sites"`

	// Names maps state handles back to scenario names.
	Names map[uint64]string `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Selected:  []string{},
		Trace:     []trace.Event{},
		Errors:    []string{},
		ForkSites: []forkcount.Site{},
		Names:     make(map[uint64]string),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
