package service

import "parish/models"

const (
	// RoleAdministrator 管理员，可维护类别、模板与期间
	RoleAdministrator = "administrator"
	// RoleStaff 普通工作人员，只读
	RoleStaff = "staff"
)

// Actor 调用者身份，由外部身份提供方校验后传入
type Actor struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	// Scope 受限工作人员的负责范围，空表示不限
	Scope string `json:"scope"`
}

// IsAdministrator 是否管理员
func (a Actor) IsAdministrator() bool {
	return a.Role == RoleAdministrator
}

// authorizeAdmin 只允许管理员
func authorizeAdmin(a Actor) error {
	if a.IsAdministrator() {
		return nil
	}
	return newError(KindForbidden, "", 0, "只有管理员可以执行该操作")
}

// authorizeWrite 管理员或配置中允许写入的角色
func (p Policy) authorizeWrite(a Actor) error {
	if a.IsAdministrator() {
		return nil
	}
	for _, r := range p.WriteRoles {
		if r == a.Role {
			return nil
		}
	}
	return newError(KindForbidden, "", 0, "角色 %q 无写入权限", a.Role)
}

// AuthorizeWrite 供外层接口（如发送报表）复用写入角色校验
func (p Policy) AuthorizeWrite(a Actor) error {
	return p.authorizeWrite(a)
}

// authorizeScope 受限工作人员只能操作本范围的类别
func authorizeScope(a Actor, cat *models.Category) error {
	if a.IsAdministrator() || a.Scope == "" || cat.ScopeKey == "" || a.Scope == cat.ScopeKey {
		return nil
	}
	return newError(KindForbidden, EntityCategory, cat.ID, "无权操作范围 %q 的类别", cat.ScopeKey)
}
