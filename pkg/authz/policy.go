// Package authz implements the access-control decision table for account
// operations. The evaluator is pure: it never touches storage or transport,
// and a deny is a return value, not an error. Callers translate a deny into
// the appropriate boundary outcome (401 vs 403).
package authz

// Action represents an operation on an account resource
type Action string

const (
	ActionCreate   Action = "create"
	ActionRetrieve Action = "retrieve"
	ActionList     Action = "list"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
)

// Decision is the outcome of a policy evaluation
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Requester identifies who is asking. The zero value is anonymous.
type Requester struct {
	ID            int64
	Authenticated bool
	Staff         bool
	Superuser     bool
}

// Anonymous is the requester with no identity.
var Anonymous = Requester{}

// Target identifies the account a request operates on. A nil *Target means
// the action has no target (list) or the target could not be resolved.
type Target struct {
	ID int64
}

// rule describes which requester classes an action is open to. Ownership is
// identity equality between requester and target, never a role check.
type rule struct {
	anonymous bool // no identity required
	anyUser   bool // any authenticated identity
	owner     bool
	staff     bool
	superuser bool
}

// policy is the decision table. Staff deliberately have
// list/read rights but no mutation rights over other accounts; superusers
// have both. Do not "fix" the update/delete rows to include staff.
var policy = map[Action]rule{
	ActionCreate:   {anonymous: true, anyUser: true, owner: true, staff: true, superuser: true},
	ActionRetrieve: {anyUser: true, owner: true, staff: true, superuser: true},
	ActionList:     {staff: true, superuser: true},
	ActionUpdate:   {owner: true, superuser: true},
	ActionDelete:   {owner: true, superuser: true},
}

// Evaluate decides whether the requester may perform the action on the
// target. A nil target is valid: ownership simply cannot match, so only the
// role columns of the table apply. Unknown actions are denied.
func Evaluate(r Requester, action Action, target *Target) Decision {
	rule, ok := policy[action]
	if !ok {
		return Deny
	}

	if rule.anonymous {
		return Allow
	}
	if !r.Authenticated {
		return Deny
	}
	if rule.anyUser {
		return Allow
	}
	if rule.superuser && r.Superuser {
		return Allow
	}
	if rule.staff && r.Staff {
		return Allow
	}
	if rule.owner && target != nil && r.ID == target.ID {
		return Allow
	}
	return Deny
}
