package service

import (
	"context"
	"time"

	"github.com/psds-microservice/support-chat-service/internal/model"
	"gorm.io/gorm"
)

// StatusCount одна строка агрегата conversation_status_counts.
type StatusCount struct {
	Status model.ConversationStatus `json:"status"`
	Total  int64                    `json:"total"`
}

// SystemStats сводка для суперадмина.
type SystemStats struct {
	Conversations   int64 `json:"conversations"`
	Sessions        int64 `json:"sessions"`
	Tickets         int64 `json:"tickets"`
	Open            int64 `json:"open"`
	Unassigned      int64 `json:"unassigned"`
	MessagesToday   int64 `json:"messages_today"`
	ActiveAgents    int64 `json:"active_agents"`
	OnlineNow       int64 `json:"online_now"`
	RestaurantCount int64 `json:"restaurants"`
}

type StatsServicer interface {
	CountsByStatus(ctx context.Context, actor model.Actor, kind model.ConversationKind) ([]StatusCount, error)
	SystemStats(ctx context.Context) (*SystemStats, error)
}

type StatsService struct {
	db *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{db: db}
}

// CountsByStatus вызывает функцию conversation_status_counts с контекстом
// доступа актора внутри транзакции. Менеджера функция сама ограничивает
// его рестораном.
func (s *StatsService) CountsByStatus(ctx context.Context, actor model.Actor, kind model.ConversationKind) ([]StatusCount, error) {
	var rows []StatusCount
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := SetAccessContext(tx, actor); err != nil {
			return err
		}
		return tx.Raw("SELECT status, total FROM conversation_status_counts(?, ?)", string(kind), actor.RestaurantID).
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *StatsService) SystemStats(ctx context.Context) (*SystemStats, error) {
	db := s.db.WithContext(ctx)
	var st SystemStats
	conv := func() *gorm.DB { return db.Model(&model.Conversation{}) }
	startOfDay := time.Now().UTC().Truncate(24 * time.Hour)

	counts := []struct {
		dst *int64
		q   *gorm.DB
	}{
		{&st.Conversations, conv()},
		{&st.Sessions, conv().Where("kind = ?", model.KindSession)},
		{&st.Tickets, conv().Where("kind = ?", model.KindTicket)},
		{&st.Open, conv().Where("status = ?", model.StatusOpen)},
		{&st.Unassigned, conv().Where("assigned_agent_id = '' OR assigned_agent_id IS NULL").
			Where("status NOT IN ?", []model.ConversationStatus{model.StatusResolved, model.StatusClosed})},
		{&st.MessagesToday, db.Model(&model.Message{}).Where("created_at >= ?", startOfDay)},
		{&st.ActiveAgents, db.Model(&model.Agent{}).Where("is_active = ? AND role <> ?", true, model.RoleRestaurantManager)},
		{&st.OnlineNow, db.Model(&model.Participant{}).Where("is_online = ?", true)},
		{&st.RestaurantCount, conv().Distinct("restaurant_id")},
	}
	for _, c := range counts {
		if err := c.q.Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	return &st, nil
}
