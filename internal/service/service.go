package service

import (
	"github.com/psds-microservice/support-chat-service/internal/kafka"
	"github.com/psds-microservice/support-chat-service/internal/realtime"
	"github.com/psds-microservice/support-chat-service/internal/searchindex"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps общие зависимости сервисов.
type Deps struct {
	DB     *gorm.DB
	Feed   realtime.Publisher
	Events kafka.EventProducer
	Search *searchindex.Client
	Log    *zap.Logger

	// StrictTransitions запрещает переходы статуса назад.
	StrictTransitions bool
}

// Services объединяет сервисы строк и заодно реализует realtime.Backend.
type Services struct {
	*ConversationService
	*MessageService
	*ParticipantService
	Stats  *StatsService
	Agents *AgentService
}

var _ realtime.Backend = (*Services)(nil)

func New(deps Deps) *Services {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	n := &notifier{feed: deps.Feed, events: deps.Events, search: deps.Search, log: deps.Log}
	return &Services{
		ConversationService: &ConversationService{db: deps.DB, notify: n, strict: deps.StrictTransitions},
		MessageService:      &MessageService{db: deps.DB, notify: n},
		ParticipantService:  &ParticipantService{db: deps.DB, notify: n},
		Stats:               NewStatsService(deps.DB),
		Agents:              NewAgentService(deps.DB),
	}
}
