package maintenance

// ItemError records a per-item failure inside a batch pass. Batch passes
// never fail wholesale for one bad item; they accumulate these instead.
type ItemError struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// PassResult is the structured outcome of one maintenance pass
type PassResult struct {
	Operation  string      `json:"operation"`
	Succeeded  int         `json:"succeeded"`
	Skipped    int         `json:"skipped"`
	Failed     int         `json:"failed"`
	TouchedIDs []string    `json:"touched_ids,omitempty"`
	DeletedIDs []string    `json:"deleted_ids,omitempty"`
	Errors     []ItemError `json:"errors,omitempty"`
}

func newPassResult(operation string) *PassResult {
	return &PassResult{Operation: operation}
}

func (r *PassResult) addError(id string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, ItemError{ID: id, Reason: err.Error()})
}

func (r *PassResult) addSkip(id string, reason string) {
	r.Skipped++
	r.Errors = append(r.Errors, ItemError{ID: id, Reason: reason})
}
