package realtime

import "github.com/psds-microservice/support-chat-service/internal/model"

type TopicKind string

const (
	TopicAllSessions         TopicKind = "sessions"
	TopicSessionMessages     TopicKind = "session_messages"
	TopicSessionParticipants TopicKind = "session_participants"
	TopicAllTickets          TopicKind = "tickets"
	TopicTicketMessages      TopicKind = "ticket_messages"
	TopicAllMessages         TopicKind = "messages"
)

// Topic имя потока ленты. Scope это id разговора для топиков фокуса
// и пустая строка для глобальных.
type Topic struct {
	Kind  TopicKind
	Scope string
}

// Key идентичность подписки: не больше одного живого handle на ключ.
func (t Topic) Key() string {
	if t.Scope == "" {
		return string(t.Kind)
	}
	return string(t.Kind) + ":" + t.Scope
}

func (t Topic) String() string { return t.Key() }

// Global сообщает, охватывает ли топик все разговоры.
func (t Topic) Global() bool {
	switch t.Kind {
	case TopicAllSessions, TopicAllTickets, TopicAllMessages:
		return true
	}
	return false
}

func AllSessions() Topic { return Topic{Kind: TopicAllSessions} }
func AllTickets() Topic  { return Topic{Kind: TopicAllTickets} }
func AllMessages() Topic { return Topic{Kind: TopicAllMessages} }

// ConversationsTopic глобальный топик разговоров заданного вида.
func ConversationsTopic(kind model.ConversationKind) Topic {
	if kind == model.KindSession {
		return AllSessions()
	}
	return AllTickets()
}

// MessagesFor топик сообщений одного разговора.
func MessagesFor(kind model.ConversationKind, conversationID string) Topic {
	if kind == model.KindSession {
		return Topic{Kind: TopicSessionMessages, Scope: conversationID}
	}
	return Topic{Kind: TopicTicketMessages, Scope: conversationID}
}

func ParticipantsFor(conversationID string) Topic {
	return Topic{Kind: TopicSessionParticipants, Scope: conversationID}
}
