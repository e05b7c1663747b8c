package model

import (
	"github.com/psds-microservice/support-chat-service/internal/errs"
)

type ConversationKind string

const (
	KindTicket  ConversationKind = "ticket"
	KindSession ConversationKind = "session"
)

func (k ConversationKind) Valid() bool {
	return k == KindTicket || k == KindSession
}

// EngagedStatus возвращает статус после назначения: тикет уходит в in_progress,
// живая сессия в active.
func (k ConversationKind) EngagedStatus() ConversationStatus {
	if k == KindSession {
		return StatusActive
	}
	return StatusInProgress
}

type ConversationStatus string

const (
	StatusOpen       ConversationStatus = "open"
	StatusInProgress ConversationStatus = "in_progress"
	StatusActive     ConversationStatus = "active"
	StatusResolved   ConversationStatus = "resolved"
	StatusClosed     ConversationStatus = "closed"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusActive, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// rank задаёт порядок статусов в жизненном цикле. in_progress и active равны.
func (s ConversationStatus) rank() int {
	switch s {
	case StatusOpen:
		return 0
	case StatusInProgress, StatusActive:
		return 1
	case StatusResolved:
		return 2
	case StatusClosed:
		return 3
	}
	return -1
}

// CheckTransition проверяет смену статуса. Без strict принимается любой
// допустимый статус, со strict статус не может идти назад.
func CheckTransition(from, to ConversationStatus, strict bool) error {
	if !to.Valid() {
		return errs.ErrInvalidStatus
	}
	if !strict || from == to || from == "" {
		return nil
	}
	if to.rank() < from.rank() {
		return errs.Transition(string(from), string(to))
	}
	return nil
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type SenderType string

const (
	SenderRestaurantManager SenderType = "restaurant_manager"
	SenderSupportAgent      SenderType = "support_agent"
	SenderSuperAdmin        SenderType = "super_admin"
)

func (s SenderType) Valid() bool {
	switch s {
	case SenderRestaurantManager, SenderSupportAgent, SenderSuperAdmin:
		return true
	}
	return false
}

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

func (m MessageType) Valid() bool {
	return m == MessageText || m == MessageImage || m == MessageFile
}
