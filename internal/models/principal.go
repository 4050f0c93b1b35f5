package models

type Role string

const (
	RoleManager Role = "MANAGER"
	RoleTenant  Role = "TENANT"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID   int64
	Role     Role
	TenantID *int64
}

func (p Principal) IsManager() bool {
	return p.Role == RoleManager
}

// IsTenant reports whether p is the tenant with the given id.
func (p Principal) IsTenant(tenantID int64) bool {
	return p.Role == RoleTenant && p.TenantID != nil && *p.TenantID == tenantID
}

// CanView is true for managers and for the tenant billed by the invoice.
func (p Principal) CanView(inv *Invoice) bool {
	return p.IsManager() || p.IsTenant(inv.TenantID)
}
