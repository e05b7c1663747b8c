package realtime

import (
	"sync"

	"github.com/psds-microservice/support-chat-service/internal/model"
	"go.uber.org/zap"
)

// PresenceTracker повторяет участников открытого разговора по событиям таблицы
// participants. Heartbeat нет: участник, пропавший без delete или offline
// update, считается онлайн до следующего события.
type PresenceTracker struct {
	log *zap.Logger

	mu      sync.RWMutex
	items   []model.Participant
	pending reloadLog[model.Participant]
}

func NewPresenceTracker(log *zap.Logger) *PresenceTracker {
	return &PresenceTracker{log: log}
}

// Reset заменяет набор целиком и сбрасывает незавершённую перезагрузку.
func (p *PresenceTracker) Reset(participants []model.Participant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.reset()
	p.items = p.items[:0]
	seen := make(map[string]struct{}, len(participants))
	for _, pt := range participants {
		if _, ok := seen[pt.ID]; ok {
			continue
		}
		seen[pt.ID] = struct{}{}
		p.items = append(p.items, pt)
	}
}

// beginReload очищает набор и начинает запись событий до прихода выборки.
func (p *PresenceTracker) beginReload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = nil
	p.pending.reset()
	p.pending.begin()
}

// finishReload сливает выборку с событиями, пришедшими после beginReload.
func (p *PresenceTracker) finishReload(fetched []model.Participant) []model.Participant {
	p.mu.Lock()
	p.items = p.pending.merge(fetched, func(pt *model.Participant) string { return pt.ID })
	p.pending.end()
	p.mu.Unlock()
	return p.Participants()
}

// OnParticipantEvent применяет вставку (без дублей по id), обновление (замена по id)
// или удаление. Возвращает true, если набор изменился.
func (p *PresenceTracker) OnParticipantEvent(env Envelope) bool {
	ch, err := DecodeChange[model.Participant](env)
	if err != nil {
		p.log.Warn("realtime: bad participant event", zap.Error(err))
		return false
	}
	row := ch.Row()
	if row == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.record(row.ID, *row, ch.Type == EventDelete)
	idx := -1
	for i := range p.items {
		if p.items[i].ID == row.ID {
			idx = i
			break
		}
	}
	switch ch.Type {
	case EventInsert:
		if idx >= 0 {
			return false
		}
		p.items = append(p.items, *row)
		return true
	case EventUpdate:
		if idx < 0 {
			return false
		}
		p.items[idx] = *row
		return true
	case EventDelete:
		if idx < 0 {
			return false
		}
		p.items = append(p.items[:idx], p.items[idx+1:]...)
		return true
	}
	return false
}

func (p *PresenceTracker) Participants() []model.Participant {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.Participant, len(p.items))
	copy(out, p.items)
	return out
}

func (p *PresenceTracker) Online() []model.Participant {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []model.Participant
	for _, pt := range p.items {
		if pt.IsOnline {
			out = append(out, pt)
		}
	}
	return out
}

// IsOnline возвращает последнее известное присутствие userID.
func (p *PresenceTracker) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, pt := range p.items {
		if pt.UserID == userID {
			return pt.IsOnline
		}
	}
	return false
}
