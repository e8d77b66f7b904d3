package result

import "strings"

const (
	ownerPrefix  = "user:"
	publicPrefix = "public:"
)

// Scope identifies who a payload was assembled for: the owning user, or a
// public token holder. Payloads differ per scope so they are cached per scope.
type Scope string

// OwnerScope is the scope of the owning user
func OwnerScope(userID string) Scope {
	return Scope(ownerPrefix + userID)
}

// PublicScope is the scope of an anonymous holder of token
func PublicScope(token string) Scope {
	return Scope(publicPrefix + token)
}

// IsPublic reports whether the scope is a share-token scope
func (s Scope) IsPublic() bool {
	return strings.HasPrefix(string(s), publicPrefix)
}

// Key addresses one cached payload
type Key struct {
	JobID string
	Scope Scope
}

func (k Key) String() string {
	return k.JobID + "|" + string(k.Scope)
}
