package shared

// Outcome reports whether a governance mutation reached the remote store.
type Outcome string

const (
	// OutcomePersisted means the remote write was confirmed.
	OutcomePersisted Outcome = "persisted"
	// OutcomeLocalOnly means the remote write failed and only in-memory state changed.
	OutcomeLocalOnly Outcome = "localOnly"
)

// OutcomeOf maps the result of a remote write to an Outcome.
func OutcomeOf(remoteErr error) Outcome {
	if remoteErr != nil {
		return OutcomeLocalOnly
	}
	return OutcomePersisted
}

// LocalOnly reports whether the mutation was applied locally only.
func (o Outcome) LocalOnly() bool {
	return o == OutcomeLocalOnly
}
