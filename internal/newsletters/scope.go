package newsletters

import "fmt"

// Scope says whose newsletters a call may touch: every newsletter (Global) or one
// organization's.
type Scope struct {
	orgID int64
}

// Global is the admin scope.
func Global() Scope { return Scope{} }

// Org restricts calls to the newsletters of organization id.
func Org(id int64) Scope { return Scope{orgID: id} }

// IsGlobal reports whether s is the admin scope.
func (s Scope) IsGlobal() bool { return s.orgID == 0 }

// OrgID returns the organization of an org scope, or nil for Global.
func (s Scope) OrgID() *int64 {
	if s.IsGlobal() {
		return nil
	}
	id := s.orgID
	return &id
}

func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return fmt.Sprintf("org:%d", s.orgID)
}
