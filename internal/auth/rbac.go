package auth

import (
	"github.com/upb/firmauth/models"
)

// PermissionSet is an immutable set of permissions. The zero value is empty.
type PermissionSet struct {
	m map[models.Permission]struct{}
}

// NewPermissionSet builds a set from the given permissions, ignoring duplicates
func NewPermissionSet(perms ...models.Permission) PermissionSet {
	m := make(map[models.Permission]struct{}, len(perms))
	for _, p := range perms {
		m[p] = struct{}{}
	}
	return PermissionSet{m: m}
}

// Has reports whether p is in the set
func (s PermissionSet) Has(p models.Permission) bool {
	_, ok := s.m[p]
	return ok
}

// Len returns the number of permissions in the set
func (s PermissionSet) Len() int {
	return len(s.m)
}

// Union returns a new set holding the permissions of both sets
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	m := make(map[models.Permission]struct{}, len(s.m)+len(other.m))
	for p := range s.m {
		m[p] = struct{}{}
	}
	for p := range other.m {
		m[p] = struct{}{}
	}
	return PermissionSet{m: m}
}

// Missing returns the permissions from required that are not in the set,
// in the order they were requested
func (s PermissionSet) Missing(required ...models.Permission) []models.Permission {
	var missing []models.Permission
	for _, p := range required {
		if !s.Has(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// ContainsAll reports whether every permission in required is in the set
func (s PermissionSet) ContainsAll(required ...models.Permission) bool {
	return len(s.Missing(required...)) == 0
}

// Slice returns the permissions in catalog order. Unknown permissions are
// appended at the end.
func (s PermissionSet) Slice() []models.Permission {
	out := make([]models.Permission, 0, len(s.m))
	seen := make(map[models.Permission]struct{}, len(s.m))
	for _, p := range models.AllPermissions {
		if s.Has(p) {
			out = append(out, p)
			seen[p] = struct{}{}
		}
	}
	for p := range s.m {
		if _, ok := seen[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// Equal reports whether both sets hold exactly the same permissions
func (s PermissionSet) Equal(other PermissionSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for p := range s.m {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

var (
	attorneyPermissions = []models.Permission{
		models.PermResearchRead, models.PermResearchWrite,
		models.PermCaseRead, models.PermCaseWrite,
		models.PermDocumentRead, models.PermDocumentWrite, models.PermDocumentExport,
		models.PermAPIAccess, models.PermMCPAccess,
	}

	associatePermissions = []models.Permission{
		models.PermResearchRead, models.PermResearchWrite,
		models.PermCaseRead, models.PermCaseWrite,
		models.PermDocumentRead, models.PermDocumentWrite, models.PermDocumentExport,
		models.PermAPIAccess,
	}

	catalog = map[models.Role]PermissionSet{
		models.RoleAdmin:     NewPermissionSet(models.AllPermissions...),
		models.RolePartner:   NewPermissionSet(without(models.AllPermissions, models.PermFirmAdmin, models.PermUserManage, models.PermBillingRead)...),
		models.RoleAttorney:  NewPermissionSet(attorneyPermissions...),
		models.RoleAssociate: NewPermissionSet(associatePermissions...),
		models.RoleParalegal: NewPermissionSet(
			models.PermResearchRead, models.PermCaseRead,
			models.PermDocumentRead, models.PermDocumentWrite,
		),
		models.RoleGuest: NewPermissionSet(
			models.PermResearchRead, models.PermCaseRead, models.PermDocumentRead,
		),
	}
)

func without(all []models.Permission, drop ...models.Permission) []models.Permission {
	skip := NewPermissionSet(drop...)
	out := make([]models.Permission, 0, len(all))
	for _, p := range all {
		if !skip.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// RolePermissions returns the catalog permissions of a role. Unknown roles get
// an empty set.
func RolePermissions(role models.Role) PermissionSet {
	return catalog[role]
}

// EffectivePermissions returns the union of the role's catalog permissions
// and the user's custom grants
func EffectivePermissions(role models.Role, custom []models.Permission) PermissionSet {
	return RolePermissions(role).Union(NewPermissionSet(custom...))
}
