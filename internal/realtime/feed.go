package realtime

//go:generate mockgen -source=feed.go -destination=mocks/mock_feed.go -package=mocks

import "context"

// Channel открытый поток ленты изменений.
type Channel interface {
	Close() error
}

// Feed открывает потоки ленты. deliver вызывается на каждое событие топика,
// fail вызывается не больше одного раза, если открытый поток оборвался.
type Feed interface {
	Subscribe(ctx context.Context, topic Topic, deliver func(Envelope), fail func(error)) (Channel, error)
}

// Publisher публикует изменения строк в ленту.
type Publisher interface {
	Publish(ctx context.Context, topic Topic, env Envelope) error
}
