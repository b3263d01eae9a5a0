package sync

// Outcome states what happened to one tracked file.
type Outcome string

const (
	// OutcomeApplied: the file was written, or would be in dry-run.
	OutcomeApplied Outcome = "applied"
	// OutcomeSkipped: the file was left untouched, either because it was
	// already up to date or because the operator declined.
	OutcomeSkipped Outcome = "skipped"
)

// Entry records the decision for one tracked file.
type Entry struct {
	Path    string // relative path inside the project
	Outcome Outcome
	Detail  string // up-to-date, added, updated, not added, not updated, would add, ...
}

// Report summarizes one synchronization run in decision order.
type Report struct {
	Commit  string // resolved reference commit, empty in dry-run
	Entries []Entry
}

func (r *Report) add(path string, outcome Outcome, detail string) {
	r.Entries = append(r.Entries, Entry{Path: path, Outcome: outcome, Detail: detail})
}

// Applied counts entries that were (or in dry-run, would be) written.
func (r *Report) Applied() int {
	return r.count(OutcomeApplied)
}

// Skipped counts entries left untouched.
func (r *Report) Skipped() int {
	return r.count(OutcomeSkipped)
}

func (r *Report) count(outcome Outcome) int {
	n := 0
	for _, e := range r.Entries {
		if e.Outcome == outcome {
			n++
		}
	}
	return n
}
