package model

type ActorRole string

const (
	RoleRestaurantManager ActorRole = "restaurant_manager"
	RoleSupportAgent      ActorRole = "support_agent"
	RoleSuperAdmin        ActorRole = "super_admin"
)

func (r ActorRole) Valid() bool {
	return r == RoleRestaurantManager || r == RoleSupportAgent || r == RoleSuperAdmin
}

// SenderType переводит роль в тип отправителя сообщения.
func (r ActorRole) SenderType() SenderType {
	return SenderType(r)
}

// Actor тот, кто работает в дашборде: менеджер одного ресторана,
// агент поддержки или суперадмин.
type Actor struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Role         ActorRole `json:"role"`
	RestaurantID string    `json:"restaurant_id,omitempty"`
}

// Scoped сообщает, видит ли актор только свой ресторан.
func (a Actor) Scoped() bool {
	return a.Role == RoleRestaurantManager
}

// CanSee сообщает, виден ли разговор актору.
func (a Actor) CanSee(c *Conversation) bool {
	if !a.Scoped() {
		return true
	}
	return c.RestaurantID == a.RestaurantID
}
