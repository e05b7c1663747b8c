package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Conversation обращение в поддержку от одного ресторана. Kind определяет,
// тикет это или живая чат-сессия.
type Conversation struct {
	ID           string           `gorm:"type:uuid;primaryKey" json:"id"`
	Kind         ConversationKind `gorm:"type:varchar(16);index;not null" json:"kind"`
	RestaurantID string           `gorm:"index;not null" json:"restaurant_id"`
	CreatedBy    string           `gorm:"index;not null" json:"created_by"`

	Title       string             `gorm:"type:varchar(255);not null" json:"title"`
	Description string             `gorm:"type:text" json:"description,omitempty"`
	Category    string             `gorm:"type:varchar(64)" json:"category,omitempty"`
	Priority    Priority           `gorm:"type:varchar(16);index;not null" json:"priority"`
	Status      ConversationStatus `gorm:"type:varchar(32);index;not null" json:"status"`

	AssignedAgentName string `gorm:"type:varchar(255)" json:"assigned_agent_name,omitempty"`
	AssignedAgentID   string `gorm:"index" json:"assigned_agent_id,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at,omitempty"`
}

func (Conversation) TableName() string { return "conversations" }

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// Assigned сообщает, назначен ли агент.
func (c *Conversation) Assigned() bool {
	return c.AssignedAgentID != ""
}

// SortTime ключ сортировки списков: для сессий последняя активность,
// для тикетов время создания. Сессия без сообщений сортируется по созданию.
func (c *Conversation) SortTime() time.Time {
	if c.Kind == KindSession && c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

type Message struct {
	ID             string     `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID string     `gorm:"type:uuid;index;not null" json:"conversation_id"`
	Seq            int64      `gorm:"autoIncrement;not null;uniqueIndex" json:"seq"`
	SenderType     SenderType `gorm:"type:varchar(32);not null" json:"sender_type"`
	SenderID       string     `gorm:"not null" json:"sender_id"`
	SenderName     string     `gorm:"type:varchar(255)" json:"sender_name"`

	Text            string         `gorm:"type:text;not null" json:"text"`
	MessageType     MessageType    `gorm:"type:varchar(16);not null" json:"message_type"`
	HasAttachments  bool           `json:"has_attachments"`
	IsSystemMessage bool           `json:"is_system_message"`
	Attachments     datatypes.JSON `gorm:"type:jsonb" json:"attachments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// Before упорядочивает сообщения по времени создания, а при равном времени
// по порядку вставки.
func (m *Message) Before(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.Seq < o.Seq
}

// Participant участник разговора. Пара (ConversationID, UserID) уникальна.
type Participant struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID string    `gorm:"type:uuid;not null;uniqueIndex:ux_participant_user" json:"conversation_id"`
	UserID         string    `gorm:"not null;uniqueIndex:ux_participant_user" json:"user_id"`
	UserType       ActorRole `gorm:"type:varchar(32);not null" json:"user_type"`
	UserName       string    `gorm:"type:varchar(255)" json:"user_name"`
	IsOnline       bool      `json:"is_online"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	JoinedAt       time.Time `json:"joined_at"`
}

func (Participant) TableName() string { return "participants" }

func (p *Participant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// Agent учётная запись дашборда. У менеджера ресторана заполнен его ресторан.
type Agent struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         ActorRole `gorm:"type:varchar(32);not null" json:"role"`
	RestaurantID string    `gorm:"index" json:"restaurant_id,omitempty"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Agent) TableName() string { return "agents" }

// Actor возвращает личность, под которой агент работает в дашборде.
func (a *Agent) Actor() Actor {
	return Actor{ID: a.ID, Name: a.Name, Role: a.Role, RestaurantID: a.RestaurantID}
}

func (a *Agent) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

type SubscriptionStatus string

const (
	SubscriptionPending  SubscriptionStatus = "pending"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// RestaurantSubscription платный тариф ресторана, его пишет вебхук оплаты.
type RestaurantSubscription struct {
	RestaurantID string             `gorm:"primaryKey" json:"restaurant_id"`
	Plan         string             `gorm:"type:varchar(64)" json:"plan"`
	Status       SubscriptionStatus `gorm:"type:varchar(16);not null" json:"status"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (RestaurantSubscription) TableName() string { return "restaurant_subscriptions" }
