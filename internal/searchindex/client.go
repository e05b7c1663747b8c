package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/psds-microservice/support-chat-service/internal/model"
	"go.uber.org/zap"
)

// Client отправляет разговоры в search-service на индексацию, без гарантий.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient создаёт клиент. С пустым baseURL вызовы ничего не делают.
func NewClient(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		log:     log,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) Enabled() bool { return c != nil && c.baseURL != "" }

// IndexConversationPayload тело POST /search/index/conversation.
type IndexConversationPayload struct {
	ConversationID  string `json:"conversation_id"`
	Kind            string `json:"kind"`
	RestaurantID    string `json:"restaurant_id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Category        string `json:"category"`
	Priority        string `json:"priority"`
	Status          string `json:"status"`
	AssignedAgentID string `json:"assigned_agent_id"`
}

// IndexConversation отправляет один разговор в search-service.
func (c *Client) IndexConversation(ctx context.Context, conv *model.Conversation) error {
	if !c.Enabled() {
		return nil
	}
	body, err := json.Marshal(IndexConversationPayload{
		ConversationID:  conv.ID,
		Kind:            string(conv.Kind),
		RestaurantID:    conv.RestaurantID,
		Title:           conv.Title,
		Description:     conv.Description,
		Category:        conv.Category,
		Priority:        string(conv.Priority),
		Status:          string(conv.Status),
		AssignedAgentID: conv.AssignedAgentID,
	})
	if err != nil {
		return fmt.Errorf("searchindex: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search/index/conversation", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("searchindex: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("searchindex: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("searchindex: status %d for conversation %s", resp.StatusCode, conv.ID)
	}
	return nil
}

// IndexConversationAsync индексирует в горутине и только логирует ошибки.
func (c *Client) IndexConversationAsync(conv *model.Conversation) {
	if !c.Enabled() {
		return
	}
	snapshot := *conv
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.IndexConversation(ctx, &snapshot); err != nil {
			c.log.Warn("searchindex: index conversation", zap.String("id", snapshot.ID), zap.Error(err))
		}
	}()
}
