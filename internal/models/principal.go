package models

// PrincipalKind distinguishes human users from edge nodes.
type PrincipalKind string

const (
	PrincipalUser PrincipalKind = "user"
	PrincipalEdge PrincipalKind = "edge"
)

// Principal is the authenticated caller resolved from the bearer credential.
// TeamID is only set for edge nodes.
type Principal struct {
	ID     string
	Kind   PrincipalKind
	Email  string
	TeamID string
}

func (p Principal) IsEdge() bool { return p.Kind == PrincipalEdge }
