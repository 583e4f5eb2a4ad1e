package ability

// Core platform ability ids. The console frontend references these by value,
// so they are fixed and never reassigned.
const (
	IDCore int64 = 1000

	IDRolesView   int64 = 1101
	IDRolesEdit   int64 = 1102
	IDUsersView   int64 = 1201
	IDUsersEdit   int64 = 1202
	IDCatalogView int64 = 1301
)

// CoreAbilities lists the permission nodes owned by the core platform itself.
func CoreAbilities() []Ability {
	return []Ability{
		{ID: IDCore, ParentID: 0, Name: "core", Description: "Core platform administration", ModuleName: "core", Kind: KindModule},
		{ID: IDRolesView, ParentID: IDCore, Name: "roles.view", ModuleName: "core", ObjectName: "roles", Kind: KindInterface},
		{ID: IDRolesEdit, ParentID: IDCore, Name: "roles.edit", ModuleName: "core", ObjectName: "roles", Kind: KindInterface},
		{ID: IDUsersView, ParentID: IDCore, Name: "users.view", ModuleName: "core", ObjectName: "users", Kind: KindInterface},
		{ID: IDUsersEdit, ParentID: IDCore, Name: "users.edit", ModuleName: "core", ObjectName: "users", Kind: KindInterface},
		{ID: IDCatalogView, ParentID: IDCore, Name: "abilities.view", ModuleName: "core", ObjectName: "abilities", Kind: KindInterface},
	}
}
