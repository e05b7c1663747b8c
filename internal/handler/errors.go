package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// statusFor переводит доменные ошибки в HTTP-коды.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrConversationNotFound),
		errors.Is(err, errs.ErrAgentNotFound),
		errors.Is(err, errs.ErrParticipantNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrInvalidStatus),
		errors.Is(err, errs.ErrInvalidPriority),
		errors.Is(err, errs.ErrInvalidKind),
		errors.Is(err, errs.ErrMissingField),
		errors.Is(err, errs.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrIllegalTransition),
		errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, errs.ErrNotConfirmed):
		return http.StatusConflict
	case errors.Is(err, errs.ErrUnauthorized),
		errors.Is(err, errs.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden),
		errors.Is(err, errs.ErrInactiveAgent):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// writeError отдаёт err как {"error": ...}. Неизвестные ошибки логируются и
// скрываются. Неудачная отправка возвращает ещё и неотправленный текст.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	code := statusFor(err)
	body := gin.H{"error": err.Error()}
	if code == http.StatusInternalServerError {
		log.Error("handler: unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
		body["error"] = "internal error"
	}
	var sendErr *realtime.SendError
	if errors.As(err, &sendErr) {
		body["text"] = sendErr.Text
	}
	c.JSON(code, body)
}

// orEmpty гасит ошибку чтения списка: клиент получает пустой список и 200,
// ошибка остаётся в логе. Так же ведут себя живые рабочие пространства.
func orEmpty[T any](c *gin.Context, log *zap.Logger, op string, items []T, err error) []T {
	if err != nil {
		log.Warn("handler: "+op+" failed", zap.String("path", c.FullPath()), zap.Error(err))
		return []T{}
	}
	if items == nil {
		return []T{}
	}
	return items
}
