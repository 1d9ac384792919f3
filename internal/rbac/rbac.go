package rbac

type Role string
type Action string

const (
	RoleClient  Role = "client"
	RoleCarer   Role = "carer"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionAssign  Action = "assign"
	ActionApprove Action = "approve"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleManager:
		return action == ActionRead || action == ActionWrite || action == ActionAssign || action == ActionApprove
	case RoleCarer:
		return action == ActionRead || action == ActionWrite
	case RoleClient:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleClient, RoleCarer, RoleManager, RoleAdmin:
		return Role(role)
	default:
		return RoleClient
	}
}
