package pac

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the outcome pac reports for every command.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// Output is the envelope common to every pac reply.
type Output struct {
	Status      Status   `json:"Status"`
	Errors      []string `json:"Errors,omitempty"`
	Information []string `json:"Information,omitempty"`
}

// Succeeded reports whether pac returned Status "Success".
func (o Output) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Err converts a failed envelope into a *CommandError. It returns nil when
// the command succeeded. A failed status is a normal reply, not a transport
// problem; callers decide whether to treat it as an error.
func (o Output) Err() error {
	if o.Succeeded() {
		return nil
	}
	return &CommandError{Status: o.Status, Errors: o.Errors}
}

// OutputWithResult is an envelope whose Results field is decoded into T.
// Results is only meaningful when Status is Success.
type OutputWithResult[T any] struct {
	Output
	Results T `json:"Results"`
}

// CommandError describes a reply whose Status was not Success.
type CommandError struct {
	Status Status
	Errors []string
}

func (e *CommandError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("pac command %s", strings.ToLower(string(e.Status)))
	}
	return fmt.Sprintf("pac command %s: %s", strings.ToLower(string(e.Status)), strings.Join(e.Errors, "; "))
}

// ParseError is returned when a reply line is not the expected JSON shape.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	line := e.Line
	if len(line) > 120 {
		line = line[:120] + "..."
	}
	return fmt.Sprintf("malformed pac reply %q: %v", line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseOutput decodes a raw reply line into an envelope with results of
// type T. A reply without a Status field is rejected.
func ParseOutput[T any](line string) (*OutputWithResult[T], error) {
	var out OutputWithResult[T]
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		return nil, &ParseError{Line: line, Err: err}
	}
	if out.Status == "" {
		return nil, &ParseError{Line: line, Err: fmt.Errorf("missing Status field")}
	}
	return &out, nil
}

// Tuple mirrors the .NET Tuple<T1, T2> shape pac serializes.
type Tuple[T1, T2 any] struct {
	Item1 T1 `json:"Item1"`
	Item2 T2 `json:"Item2"`
}

// AuthProfile is one entry of "auth list".
type AuthProfile struct {
	Index              int                    `json:"Index"`
	Kind               string                 `json:"Kind"`
	Name               string                 `json:"Name"`
	ActiveAuthProfile  bool                   `json:"ActiveAuthProfile"`
	ActiveOrganization *Tuple[string, string] `json:"ActiveOrganization,omitempty"`
	UserDisplayName    string                 `json:"UserDisplayName,omitempty"`
	CloudInstance      string                 `json:"CloudInstance,omitempty"`
	Resource           string                 `json:"Resource,omitempty"`
}

// EnvironmentIdentifier identifies a Dataverse environment.
type EnvironmentIdentifier struct {
	ID   string `json:"Id"`
	Name string `json:"Name,omitempty"`
}

// Organization is one entry of "org list".
type Organization struct {
	FriendlyName          string                `json:"FriendlyName"`
	EnvironmentIdentifier EnvironmentIdentifier `json:"EnvironmentIdentifier"`
	EnvironmentURL        string                `json:"EnvironmentUrl"`
	IsActive              bool                  `json:"IsActive,omitempty"`
}

// OrgWho is the result of "org who".
type OrgWho struct {
	OrgID         string `json:"OrgId"`
	UniqueName    string `json:"UniqueName"`
	FriendlyName  string `json:"FriendlyName"`
	OrgURL        string `json:"OrgUrl"`
	UserEmail     string `json:"UserEmail"`
	UserID        string `json:"UserId"`
	EnvironmentID string `json:"EnvironmentId"`
	ObjectID      string `json:"ObjectId,omitempty"`
}

// Solution is one entry of "solution list".
type Solution struct {
	SolutionUniqueName string `json:"SolutionUniqueName"`
	FriendlyName       string `json:"FriendlyName"`
	VersionNumber      string `json:"VersionNumber"`
}

// PagesSite is one entry of "pages list".
type PagesSite struct {
	WebsiteID    string `json:"WebsiteId"`
	FriendlyName string `json:"FriendlyName"`
	ModelVersion string `json:"ModelVersion,omitempty"`
}
