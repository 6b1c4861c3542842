package audit

import "time"

// Action enumerates governance actions recorded in the trail.
type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionActivate   Action = "activate"
	ActionDeactivate Action = "deactivate"
	ActionSuspend    Action = "suspend"
)

// Entity names the kind of record an entry targets.
type Entity string

const (
	EntityAccount Entity = "account"
	EntityRole    Entity = "role"
)

// DetailLocalOnly flags entries whose remote write could not be confirmed.
const DetailLocalOnly = "localOnly"

// Entry is an immutable record of a governance action. A nil Actor means the
// change was system-initiated.
type Entry struct {
	ID          string         `json:"id"`
	Actor       *string        `json:"actor"`
	Action      Action         `json:"action"`
	Entity      Entity         `json:"entity"`
	TargetID    string         `json:"targetId"`
	TargetEmail string         `json:"targetEmail,omitempty"`
	Details     map[string]any `json:"details"`
	At          time.Time      `json:"at"`
}

// LocalOnly reports whether the entry carries the localOnly flag.
func (e Entry) LocalOnly() bool {
	v, _ := e.Details[DetailLocalOnly].(bool)
	return v
}

// ActorLabel renders the actor for display and export.
func (e Entry) ActorLabel() string {
	if e.Actor == nil {
		return "system"
	}
	return *e.Actor
}

func (e Entry) clone() Entry {
	if e.Actor != nil {
		actor := *e.Actor
		e.Actor = &actor
	}
	details := make(map[string]any, len(e.Details))
	for k, v := range e.Details {
		details[k] = v
	}
	e.Details = details
	return e
}
