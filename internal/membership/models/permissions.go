package models

// Action is a permission-checked operation kind.
type Action string

const (
	ActionCreate Action = "create"
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// permissionMatrix is the static role -> allowed actions table.
//
//	| role   | create | view | edit | delete |
//	| owner  |   Y    |  Y   |  Y   |   Y    |
//	| admin  |   Y    |  Y   |  Y   |   N    |
//	| member |   Y    |  Y   |  N   |   N    |
var permissionMatrix = map[Role]map[Action]bool{
	RoleOwner:  {ActionCreate: true, ActionView: true, ActionEdit: true, ActionDelete: true},
	RoleAdmin:  {ActionCreate: true, ActionView: true, ActionEdit: true},
	RoleMember: {ActionCreate: true, ActionView: true},
}

// Allows reports whether role may perform action. Unknown roles allow nothing.
func (r Role) Allows(action Action) bool {
	return permissionMatrix[r][action]
}
