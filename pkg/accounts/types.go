// Package accounts implements the account resource: the model, the unique
// slug handle generation, and the resource manager that gates every
// operation through the access policy.
package accounts

import "time"

// Account represents a registered user account
type Account struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash string     `json:"-"` // Never expose the credential
	Slug         string     `json:"slug"`
	IsStaff      bool       `json:"is_staff"`
	IsSuperuser  bool       `json:"is_superuser"`
	IsActive     bool       `json:"is_active"`
	AvatarKey    string     `json:"-"` // Object storage key, never the raw URL
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Profile is the public shape of an account. Role flags and the credential
// never appear here.
type Profile struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Slug      string `json:"slug"`
}

// Profile returns the public view of the account
func (a *Account) Profile() Profile {
	return Profile{
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Slug:      a.Slug,
	}
}

// Registration is the input accepted by Create. Slug is optional; when
// supplied it is used verbatim and the generator is not invoked.
type Registration struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	Slug      string `json:"slug,omitempty"`
}

// Patch carries a partial update. Nil fields are left untouched.
type Patch struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Slug      *string `json:"slug,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return p.Email == nil && p.FirstName == nil && p.LastName == nil && p.Slug == nil
}
