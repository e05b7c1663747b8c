package model

// ConversationFilter сужает выборку разговоров. Пустые поля не фильтруют.
type ConversationFilter struct {
	Kind            ConversationKind
	Status          ConversationStatus
	RestaurantID    string
	AssignedAgentID string
	Limit           int
	Offset          int
}

// Assignee агент, которого можно назначить вместе со сменой статуса.
type Assignee struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}
