package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	anonymous = Anonymous
	regular   = Requester{ID: 1, Authenticated: true}
	other     = Requester{ID: 2, Authenticated: true}
	staff     = Requester{ID: 3, Authenticated: true, Staff: true}
	superuser = Requester{ID: 4, Authenticated: true, Staff: true, Superuser: true}
)

// TestEvaluate_DecisionTable exercises the full action x requester matrix.
func TestEvaluate_DecisionTable(t *testing.T) {
	target := &Target{ID: 1} // owned by "regular"

	tests := []struct {
		name      string
		requester Requester
		action    Action
		target    *Target
		want      Decision
	}{
		{"anonymous can register", anonymous, ActionCreate, nil, Allow},
		{"regular can register", regular, ActionCreate, nil, Allow},
		{"staff can register", staff, ActionCreate, nil, Allow},
		{"superuser can register", superuser, ActionCreate, nil, Allow},

		{"anonymous cannot retrieve", anonymous, ActionRetrieve, target, Deny},
		{"owner can retrieve", regular, ActionRetrieve, target, Allow},
		{"non-owner can retrieve", other, ActionRetrieve, target, Allow},
		{"staff can retrieve", staff, ActionRetrieve, target, Allow},
		{"superuser can retrieve", superuser, ActionRetrieve, target, Allow},

		{"anonymous cannot list", anonymous, ActionList, nil, Deny},
		{"regular cannot list", regular, ActionList, nil, Deny},
		{"staff can list", staff, ActionList, nil, Allow},
		{"superuser can list", superuser, ActionList, nil, Allow},

		{"anonymous cannot update", anonymous, ActionUpdate, target, Deny},
		{"non-owner cannot update", other, ActionUpdate, target, Deny},
		{"owner can update", regular, ActionUpdate, target, Allow},
		{"staff cannot update others", staff, ActionUpdate, target, Deny},
		{"superuser can update anyone", superuser, ActionUpdate, target, Allow},

		{"anonymous cannot delete", anonymous, ActionDelete, target, Deny},
		{"non-owner cannot delete", other, ActionDelete, target, Deny},
		{"owner can delete", regular, ActionDelete, target, Allow},
		{"staff cannot delete others", staff, ActionDelete, target, Deny},
		{"superuser can delete anyone", superuser, ActionDelete, target, Allow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.requester, tt.action, tt.target))
		})
	}
}

// TestEvaluate_OwnershipIsIdentityEquality verifies ownership is not a role check.
func TestEvaluate_OwnershipIsIdentityEquality(t *testing.T) {
	// Staff editing their own account is ownership, not privilege.
	staffOwnTarget := &Target{ID: staff.ID}
	assert.Equal(t, Allow, Evaluate(staff, ActionUpdate, staffOwnTarget))
	assert.Equal(t, Allow, Evaluate(staff, ActionDelete, staffOwnTarget))

	// A different account with the staff flag still cannot touch it.
	otherStaff := Requester{ID: 99, Authenticated: true, Staff: true}
	assert.Equal(t, Deny, Evaluate(otherStaff, ActionUpdate, staffOwnTarget))
}

// TestEvaluate_NilTarget verifies evaluation against a missing target never
// panics and only role columns apply.
func TestEvaluate_NilTarget(t *testing.T) {
	assert.Equal(t, Deny, Evaluate(regular, ActionUpdate, nil))
	assert.Equal(t, Deny, Evaluate(staff, ActionUpdate, nil))
	assert.Equal(t, Allow, Evaluate(superuser, ActionUpdate, nil))
	assert.Equal(t, Allow, Evaluate(regular, ActionRetrieve, nil))
	assert.Equal(t, Deny, Evaluate(anonymous, ActionRetrieve, nil))
}

// TestEvaluate_UnknownAction verifies the default row is deny.
func TestEvaluate_UnknownAction(t *testing.T) {
	assert.Equal(t, Deny, Evaluate(superuser, Action("publish"), nil))
}
