package models

import "fmt"

// Permission is a single capability string such as "case:read"
type Permission string

const (
	PermResearchRead   Permission = "research:read"
	PermResearchWrite  Permission = "research:write"
	PermResearchDelete Permission = "research:delete"

	PermCaseRead   Permission = "case:read"
	PermCaseWrite  Permission = "case:write"
	PermCaseDelete Permission = "case:delete"

	PermDocumentRead   Permission = "document:read"
	PermDocumentWrite  Permission = "document:write"
	PermDocumentDelete Permission = "document:delete"
	PermDocumentExport Permission = "document:export"

	PermFirmAdmin  Permission = "firm:admin"
	PermUserManage Permission = "user:manage"

	PermBillingRead   Permission = "billing:read"
	PermAnalyticsRead Permission = "analytics:read"

	PermAPIAccess Permission = "api:access"
	PermMCPAccess Permission = "mcp:access"
)

// AllPermissions lists every permission in a stable order
var AllPermissions = []Permission{
	PermResearchRead, PermResearchWrite, PermResearchDelete,
	PermCaseRead, PermCaseWrite, PermCaseDelete,
	PermDocumentRead, PermDocumentWrite, PermDocumentDelete, PermDocumentExport,
	PermFirmAdmin, PermUserManage,
	PermBillingRead, PermAnalyticsRead,
	PermAPIAccess, PermMCPAccess,
}

var permissionDescriptions = map[Permission]string{
	PermResearchRead:   "View research sessions and results",
	PermResearchWrite:  "Create and modify research sessions",
	PermResearchDelete: "Delete research sessions",
	PermCaseRead:       "View case information",
	PermCaseWrite:      "Create and modify case records",
	PermCaseDelete:     "Delete case records",
	PermDocumentRead:   "View documents and memos",
	PermDocumentWrite:  "Create and modify documents",
	PermDocumentDelete: "Delete documents",
	PermDocumentExport: "Export documents in various formats",
	PermFirmAdmin:      "Administer firm settings and users",
	PermUserManage:     "Manage user accounts and permissions",
	PermBillingRead:    "View billing and usage information",
	PermAnalyticsRead:  "View analytics and reports",
	PermAPIAccess:      "Access REST API programmatically",
	PermMCPAccess:      "Use MCP server tools",
}

// Description returns the human readable description of the permission
func (p Permission) Description() string {
	return permissionDescriptions[p]
}

// IsValid reports whether p is a known permission
func (p Permission) IsValid() bool {
	_, ok := permissionDescriptions[p]
	return ok
}

// ParsePermissions converts raw strings into permissions, rejecting unknown values
func ParsePermissions(raw []string) ([]Permission, error) {
	out := make([]Permission, 0, len(raw))
	for _, s := range raw {
		p := Permission(s)
		if !p.IsValid() {
			return nil, fmt.Errorf("unknown permission: %q", s)
		}
		out = append(out, p)
	}
	return out, nil
}

// PermissionStrings converts permissions to plain strings for storage
func PermissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// PermissionInfo describes a permission and whether the caller holds it
type PermissionInfo struct {
	Permission  Permission `json:"permission"`
	Description string     `json:"description"`
	Granted     bool       `json:"granted"`
}
