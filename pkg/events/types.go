package events

import "time"

// PlayerFound is raised for each distinct discovery response.
type PlayerFound struct {
	Location    string              `json:"location"`
	SourceIP    string              `json:"sourceIP"`
	HouseholdID string              `json:"householdID,omitempty"`
	USN         string              `json:"usn,omitempty"`
	Header      map[string][]string `json:"header,omitempty"`
}

func (*PlayerFound) isEvent() {}

// Result is the outcome of a single command, e.g. an action response or a
// player status.
type Result struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

func (*Result) isEvent() {}

// Notification is a decoded NOTIFY for a subscribed service.
type Notification struct {
	Service    string            `json:"service"`
	Seq        int               `json:"seq"`
	Time       time.Time         `json:"time"`
	Properties map[string]string `json:"properties"`
}

func (*Notification) isEvent() {}

// Failure carries an error that ended a command.
type Failure struct {
	Err error
}

func (*Failure) isEvent() {}

func (f *Failure) Error() string {
	return f.Err.Error()
}
