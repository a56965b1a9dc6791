// Package roster provides the core logic for user roster imports: parsing
// delimited upload files and planning the replace-entire-roster diff.
// This package has no network or database dependencies and can be used by
// both the server and any client frontend.
package roster

import (
	"time"

	"github.com/google/uuid"
)

// AdministratorRole is the protected role. Users holding it are never
// deactivated by omission from an upload.
const AdministratorRole = "administrator"

// UserRecord is one parsed row of an upload file: the complete intended
// state for a single user. Email is the natural key, already trimmed and
// lower-cased by the parser.
type UserRecord struct {
	Firstname string   `json:"firstname,omitempty"`
	Lastname  string   `json:"lastname,omitempty"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
}

// UserChange is one entry of the import diff. Its disposition (add, update,
// deactivate) is given by which ImportPreview bucket holds it.
// PreviousRoles is populated only for updates, for before/after display.
type UserChange struct {
	Email         string   `json:"email"`
	Firstname     string   `json:"firstname,omitempty"`
	Lastname      string   `json:"lastname,omitempty"`
	Roles         []string `json:"roles"`
	PreviousRoles []string `json:"previous_roles,omitempty"`
}

// ImportPreview is the three-way diff between an upload and the current
// roster. It is transient: regenerated on every preview request and never
// persisted.
type ImportPreview struct {
	ToAdd            []UserChange `json:"to_add"`
	ToUpdate         []UserChange `json:"to_update"`
	ToDeactivate     []UserChange `json:"to_deactivate"`
	InvalidRoles     []string     `json:"invalid_roles,omitempty"`
	ValidationErrors []string     `json:"validation_errors,omitempty"`
}

// Blocked reports whether the preview must not proceed to commit.
func (p *ImportPreview) Blocked() bool {
	return len(p.InvalidRoles) > 0 || len(p.ValidationErrors) > 0
}

// Empty reports whether the preview contains no changes at all.
func (p *ImportPreview) Empty() bool {
	return len(p.ToAdd) == 0 && len(p.ToUpdate) == 0 && len(p.ToDeactivate) == 0
}

// ImportSummary is the terminal result of a committed sync.
type ImportSummary struct {
	UsersAdded       int      `json:"users_added"`
	UsersUpdated     int      `json:"users_updated"`
	UsersDeactivated int      `json:"users_deactivated"`
	Errors           []string `json:"errors"`
	Warnings         []string `json:"warnings"`
}

// User is the persistent roster entity, owned by the store.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Firstname string    `json:"firstname,omitempty"`
	Lastname  string    `json:"lastname,omitempty"`
	IsActive  bool      `json:"is_active"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// IsAdministrator reports whether the user holds the protected role.
func (u User) IsAdministrator() bool {
	for _, r := range u.Roles {
		if r == AdministratorRole {
			return true
		}
	}
	return false
}

// ParseResult is the outcome of parsing one upload file. Rows that failed
// validation contribute a "Row N: reason" string to Errors and are excluded
// from Data.
type ParseResult struct {
	Data   []UserRecord `json:"data"`
	Errors []string     `json:"errors"`
}

// Ok reports whether the parse produced no row errors. The import flow must
// refuse to request a preview while Ok is false.
func (r ParseResult) Ok() bool {
	return len(r.Errors) == 0
}

// ImportEvent is one audit record of a committed sync.
type ImportEvent struct {
	ID               uuid.UUID `json:"id"`
	Actor            string    `json:"actor"`
	UsersAdded       int       `json:"users_added"`
	UsersUpdated     int       `json:"users_updated"`
	UsersDeactivated int       `json:"users_deactivated"`
	DurationMs       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}
