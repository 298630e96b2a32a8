package booking

// Role 访问主体角色。
type Role string

const (
	RoleGuest    Role = "guest"    // 未登录访客：只能浏览车队
	RoleCustomer Role = "customer" // 注册用户：管理自己的预订
	RoleAdmin    Role = "admin"    // 管理员：管理车队与全部预订
)

// RoleFromString 解析角色字符串，未知值一律按 guest 处理。
func RoleFromString(s string) Role {
	switch Role(s) {
	case RoleCustomer:
		return RoleCustomer
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleGuest
	}
}

// Principal 访问主体：每次 Service 调用都显式传入，
// 不依赖任何进程级会话状态。
type Principal struct {
	ID   string
	Role Role
}

// Action 受控操作。
type Action string

const (
	ActionCreateReservation Action = "reservation:create"
	ActionViewReservation   Action = "reservation:view"
	ActionCancelReservation Action = "reservation:cancel"
	ActionManageFleet       Action = "fleet:manage"
)

// Authorize 角色授权检查。规则：
// - CreateReservation：customer / admin
// - ViewReservation / CancelReservation：admin，或预订属于本人
// - ManageFleet：仅 admin
// 该检查必须先于任何状态变更与任何会泄露他人数据的查询执行。
func Authorize(p Principal, action Action, target *Reservation) error {
	if p.Role == RoleAdmin {
		return nil
	}

	switch action {
	case ActionCreateReservation:
		if p.Role == RoleCustomer && p.ID != "" {
			return nil
		}
	case ActionViewReservation, ActionCancelReservation:
		if p.Role == RoleCustomer && p.ID != "" && target != nil && target.UserID == p.ID {
			return nil
		}
	case ActionManageFleet:
		// admin only，上面已放行
	}

	return ErrUnauthorized
}
