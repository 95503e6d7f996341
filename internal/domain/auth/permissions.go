package auth

import "context"

const (
	RoleEmployee    = "Employee"
	RoleManager     = "Manager"
	RoleHR          = "HR"
	RoleSystemAdmin = "SystemAdmin"
)

const (
	PermLeaveRead    = "leave.read"
	PermLeaveWrite   = "leave.write"
	PermLeaveApprove = "leave.approve"
	PermLeaveAdmin   = "leave.admin"
	PermLeaveJobs    = "leave.jobs"
	PermAuditRead    = "audit.read"
	PermSystemAdmin  = "admin.system"
)

var DefaultPermissions = []string{
	PermLeaveRead,
	PermLeaveWrite,
	PermLeaveApprove,
	PermLeaveAdmin,
	PermLeaveJobs,
	PermAuditRead,
	PermSystemAdmin,
}

var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermLeaveRead,
		PermLeaveWrite,
	},
	RoleManager: {
		PermLeaveRead,
		PermLeaveWrite,
		PermLeaveApprove,
	},
	RoleHR: {
		PermLeaveRead,
		PermLeaveWrite,
		PermLeaveApprove,
		PermLeaveAdmin,
		PermLeaveJobs,
		PermAuditRead,
	},
	RoleSystemAdmin: {
		PermLeaveJobs,
		PermSystemAdmin,
	},
}

// StaticPermissions resolves permissions from RolePermissions. The role
// name carried in the token is the key.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(ctx context.Context, role, permission string) (bool, error) {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}
