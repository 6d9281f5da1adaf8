package model

// Role 调用方角色，由身份服务签发的令牌提供
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

// Actor 当前操作者
type Actor struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

// SystemActor 支付回调、定时任务等系统内部触发的流转使用
var SystemActor = Actor{UserID: 0, Role: RoleStaff}

func (a Actor) IsStaff() bool {
	return a.Role == RoleStaff
}

// Owns 判断操作者是否为资源所有者
func (a Actor) Owns(customerID int64) bool {
	return a.Role == RoleCustomer && a.UserID == customerID
}
