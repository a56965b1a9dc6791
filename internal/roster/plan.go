package roster

// plan.go computes the replace-entire-roster diff. Plan is a pure function
// of (upload records, current users, known roles): re-running it with
// unchanged inputs yields an identical preview, and nothing here touches
// storage.

import (
	"fmt"
	"sort"
	"strings"
)

// Plan classifies every upload record and every current user into the
// three-way import diff.
//
// Rules:
//   - upload email not in the roster            -> ToAdd
//   - upload email in the roster, any field
//     differs (name, roles, or inactive)        -> ToUpdate
//   - upload email in the roster, identical     -> no-op, omitted
//   - roster email absent from the upload       -> ToDeactivate, unless the
//     user holds the administrator role (administrators are never
//     deactivated by omission) or is already inactive
//
// Role names not present in knownRoles are collected into InvalidRoles.
// Duplicate emails inside records are reported as ValidationErrors with
// 1-based row attribution; the parser should have caught them already, but
// the planner does not trust its callers.
func Plan(records []UserRecord, current []User, knownRoles map[string]bool) *ImportPreview {
	preview := &ImportPreview{
		ToAdd:        []UserChange{},
		ToUpdate:     []UserChange{},
		ToDeactivate: []UserChange{},
	}

	byEmail := make(map[string]User, len(current))
	for _, u := range current {
		byEmail[NormalizeEmail(u.Email)] = u
	}

	invalid := make(map[string]bool)
	uploaded := make(map[string]int, len(records)) // email -> 1-based row

	for i, rec := range records {
		row := i + 1
		email := NormalizeEmail(rec.Email)

		if email == "" {
			preview.ValidationErrors = append(preview.ValidationErrors,
				fmt.Sprintf("Row %d: missing email", row))
			continue
		}
		if !emailRegex.MatchString(email) {
			preview.ValidationErrors = append(preview.ValidationErrors,
				fmt.Sprintf("Row %d: malformed email %q", row, email))
			continue
		}
		if first, dup := uploaded[email]; dup {
			preview.ValidationErrors = append(preview.ValidationErrors,
				fmt.Sprintf("Row %d: duplicate email %q (first seen on row %d)", row, email, first))
			continue
		}
		uploaded[email] = row

		roles := normalizeRoles(rec.Roles)
		for _, r := range roles {
			if !knownRoles[r] {
				invalid[r] = true
			}
		}

		change := UserChange{
			Email:     email,
			Firstname: strings.TrimSpace(rec.Firstname),
			Lastname:  strings.TrimSpace(rec.Lastname),
			Roles:     roles,
		}

		existing, ok := byEmail[email]
		if !ok {
			preview.ToAdd = append(preview.ToAdd, change)
			continue
		}
		if userDiffers(existing, change) {
			change.PreviousRoles = normalizeRoles(existing.Roles)
			preview.ToUpdate = append(preview.ToUpdate, change)
		}
	}

	for _, u := range current {
		email := NormalizeEmail(u.Email)
		if _, ok := uploaded[email]; ok {
			continue
		}
		if !u.IsActive {
			continue // already inactive, nothing to do
		}
		if u.IsAdministrator() {
			continue // safety rule: no deactivation by omission
		}
		preview.ToDeactivate = append(preview.ToDeactivate, UserChange{
			Email:     email,
			Firstname: u.Firstname,
			Lastname:  u.Lastname,
			Roles:     normalizeRoles(u.Roles),
		})
	}

	for r := range invalid {
		preview.InvalidRoles = append(preview.InvalidRoles, r)
	}
	sort.Strings(preview.InvalidRoles)

	// Deterministic ordering so identical inputs produce identical previews.
	sortChanges(preview.ToAdd)
	sortChanges(preview.ToUpdate)
	sortChanges(preview.ToDeactivate)

	return preview
}

// ExemptAdministrators returns the current users protected from
// deactivation-by-omission: active administrators whose email is absent
// from the upload. Used for sync warnings.
func ExemptAdministrators(records []UserRecord, current []User) []User {
	uploaded := make(map[string]bool, len(records))
	for _, rec := range records {
		uploaded[NormalizeEmail(rec.Email)] = true
	}

	var exempt []User
	for _, u := range current {
		if u.IsActive && u.IsAdministrator() && !uploaded[NormalizeEmail(u.Email)] {
			exempt = append(exempt, u)
		}
	}
	sort.Slice(exempt, func(i, j int) bool { return exempt[i].Email < exempt[j].Email })
	return exempt
}

// userDiffers reports whether applying the change would alter the stored
// user. An inactive user present in the upload always differs: the sync
// reactivates them. Names compare case-sensitively — a capitalization fix
// is a real update; only the email key is case-insensitive.
func userDiffers(u User, c UserChange) bool {
	if !u.IsActive {
		return true
	}
	if strings.TrimSpace(u.Firstname) != c.Firstname {
		return true
	}
	if strings.TrimSpace(u.Lastname) != c.Lastname {
		return true
	}
	return !equalRoleSets(u.Roles, c.Roles)
}

// normalizeRoles lower-cases, trims, de-duplicates and sorts a role list so
// comparisons and preview output are order-independent.
func normalizeRoles(roles []string) []string {
	seen := make(map[string]bool, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func equalRoleSets(a, b []string) bool {
	na, nb := normalizeRoles(a), normalizeRoles(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

func sortChanges(changes []UserChange) {
	sort.Slice(changes, func(i, j int) bool { return changes[i].Email < changes[j].Email })
}
