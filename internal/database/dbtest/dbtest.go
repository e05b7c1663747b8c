// Package dbtest поднимает Postgres для интеграционных тестов gorm-слоя.
//
// Если задан TEST_DATABASE_URL, используется эта база. Иначе один раз на
// тестовый бинарник запускается контейнер postgres:16-alpine через
// testcontainers; без Docker тесты пропускаются. Несколько пакетов на одной
// TEST_DATABASE_URL гоняйте с -p 1: каждый тест чистит таблицы.
package dbtest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/psds-microservice/support-chat-service/internal/database"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	EnvURL = "TEST_DATABASE_URL"
	image  = "postgres:16-alpine"
)

var (
	once     sync.Once
	dbURL    string
	setupErr error
)

// Open возвращает подключение к мигрированной базе с пустыми таблицами.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("dbtest: skipped in -short mode")
	}
	if os.Getenv(EnvURL) == "" {
		testcontainers.SkipIfProviderIsNotHealthy(t)
	}
	once.Do(func() { dbURL, setupErr = setup() })
	require.NoError(t, setupErr)

	db, err := database.Open(dbURL, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	require.NoError(t, db.Exec(
		"TRUNCATE conversations, messages, participants, agents, restaurant_subscriptions RESTART IDENTITY CASCADE",
	).Error)
	return db
}

func setup() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	u := os.Getenv(EnvURL)
	if u == "" {
		// Контейнер живёт до конца процесса, его убирает Ryuk.
		ctr, err := postgres.Run(ctx, image,
			postgres.WithDatabase("support_chat_test"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			return "", fmt.Errorf("dbtest: start %s: %w", image, err)
		}
		u, err = ctr.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			return "", fmt.Errorf("dbtest: connection string: %w", err)
		}
	}
	if err := database.MigrateUp(ctx, u, zap.NewNop()); err != nil {
		return "", fmt.Errorf("dbtest: migrate: %w", err)
	}
	return u, nil
}
