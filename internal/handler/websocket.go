package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/psds-microservice/support-chat-service/internal/billing"
	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/metrics"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/psds-microservice/support-chat-service/internal/realtime"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxCommandSize = 16 << 10
	sendBuffer     = 256
)

// Inbound command types.
const (
	CommandFocus        = "focus"
	CommandBlur         = "blur"
	CommandSend         = "send"
	CommandAssign       = "assign"
	CommandUpdateStatus = "update_status"
	CommandRefresh      = "refresh"
)

// Command запрос клиента в потоке рабочего пространства.
type Command struct {
	Type              string `json:"type"`
	Ref               string `json:"ref,omitempty"`
	ConversationID    string `json:"conversation_id,omitempty"`
	Text              string `json:"text,omitempty"`
	Status            string `json:"status,omitempty"`
	AssignedAgentName string `json:"assigned_agent_name,omitempty"`
	AssignedAgentID   string `json:"assigned_agent_id,omitempty"`
}

// Frame сообщение от сервера.
type Frame struct {
	Type         string                       `json:"type"`
	Ref          string                       `json:"ref,omitempty"`
	Update       *realtime.Update             `json:"update,omitempty"`
	Subscription *billing.SubscriptionUpdated `json:"subscription,omitempty"`
	Message      *model.Message               `json:"message,omitempty"`
	Error        string                       `json:"error,omitempty"`
	Text         string                       `json:"text,omitempty"`
}

// WorkspaceFactory создаёт рабочее пространство для подключившегося актора.
type WorkspaceFactory func(actor model.Actor) *realtime.Workspace

type WebsocketHandler struct {
	newWorkspace WorkspaceFactory
	billing      *realtime.Bus[billing.SubscriptionUpdated]
	upgrader     websocket.Upgrader
	limit        rate.Limit
	burst        int
	log          *zap.Logger
}

func NewWebsocketHandler(newWorkspace WorkspaceFactory, billingBus *realtime.Bus[billing.SubscriptionUpdated], commandRate float64, burst int, log *zap.Logger) *WebsocketHandler {
	h := &WebsocketHandler{
		newWorkspace: newWorkspace,
		billing:      billingBus,
		limit:        rate.Limit(commandRate),
		burst:        burst,
		log:          log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			log.Warn("ws: upgrade failed", zap.Int("status", status), zap.Error(reason))
			http.Error(w, http.StatusText(status), status)
		},
	}
	return h
}

// Serve переводит запрос на websocket и держит рабочее пространство, пока клиент на связи.
func (h *WebsocketHandler) Serve(c *gin.Context) {
	actor := mustActor(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	s := &wsSession{
		conn:    conn,
		ws:      h.newWorkspace(actor),
		actor:   actor,
		out:     make(chan Frame, sendBuffer),
		limiter: rate.NewLimiter(h.limit, h.burst),
		log:     h.log.With(zap.String("actor", actor.ID)),
	}
	s.run(h.billing)
}

type wsSession struct {
	conn    *websocket.Conn
	ws      *realtime.Workspace
	actor   model.Actor
	out     chan Frame
	limiter *rate.Limiter
	log     *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *wsSession) run(billingBus *realtime.Bus[billing.SubscriptionUpdated]) {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer s.shutdown()

	unsubUpdates := s.ws.Updates().Subscribe(func(u realtime.Update) {
		s.push(Frame{Type: "update", Update: &u})
	})
	defer unsubUpdates()
	if billingBus != nil {
		unsubBilling := billingBus.Subscribe(func(ev billing.SubscriptionUpdated) {
			if s.actor.Scoped() && s.actor.RestaurantID != ev.RestaurantID {
				return
			}
			s.push(Frame{Type: "subscription_updated", Subscription: &ev})
		})
		defer unsubBilling()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump()
	}()

	if err := s.ws.Open(s.ctx); err != nil {
		s.push(Frame{Type: "error", Error: err.Error()})
	}
	s.log.Info("ws: connected", zap.String("role", string(s.actor.Role)))
	s.readPump()
	s.cancel()
	<-done
	s.log.Info("ws: disconnected")
}

func (s *wsSession) shutdown() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.ws.Close()
		_ = s.conn.Close()
	})
}

// push ставит кадр в очередь. Клиент, который не успевает читать,
// отключается, а не остаётся с устаревшим видом.
func (s *wsSession) push(f Frame) {
	select {
	case <-s.ctx.Done():
	case s.out <- f:
	default:
		s.log.Warn("ws: send buffer full, dropping connection")
		s.cancel()
	}
}

func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case f := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(f); err != nil {
				s.log.Debug("ws: write", zap.Error(err))
				s.cancel()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				return
			}
		}
	}
}

func (s *wsSession) readPump() {
	s.conn.SetReadLimit(maxCommandSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("ws: read", zap.Error(err))
			}
			return
		}
		if s.ctx.Err() != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.push(Frame{Type: "error", Error: "invalid command"})
			continue
		}
		if !s.limiter.Allow() {
			metrics.WebsocketCommands.WithLabelValues(cmd.Type, "rate_limited").Inc()
			s.push(Frame{Type: "error", Ref: cmd.Ref, Error: "rate limited", Text: cmd.Text})
			continue
		}
		s.push(s.dispatch(cmd))
	}
}

// dispatch выполняет команду на рабочем пространстве и возвращает кадр ответа.
func (s *wsSession) dispatch(cmd Command) Frame {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	reply := Frame{Type: "ack", Ref: cmd.Ref}
	var err error
	switch cmd.Type {
	case CommandFocus:
		err = s.ws.Focus(ctx, cmd.ConversationID)
	case CommandBlur:
		s.ws.Blur()
	case CommandSend:
		var msg model.Message
		msg, err = s.ws.Send(ctx, cmd.Text)
		if err == nil {
			reply.Message = &msg
		}
	case CommandAssign:
		err = s.ws.Assign(ctx, cmd.ConversationID)
	case CommandUpdateStatus:
		var assignee *model.Assignee
		if cmd.AssignedAgentID != "" {
			assignee = &model.Assignee{Name: cmd.AssignedAgentName, ID: cmd.AssignedAgentID}
		}
		err = s.ws.UpdateStatus(ctx, cmd.ConversationID, model.ConversationStatus(cmd.Status), assignee)
	case CommandRefresh:
		err = s.ws.Refresh(ctx)
	default:
		err = errors.New("unknown command")
	}
	if err != nil {
		metrics.WebsocketCommands.WithLabelValues(cmd.Type, "error").Inc()
		reply = Frame{Type: "error", Ref: cmd.Ref, Error: err.Error()}
		var sendErr *realtime.SendError
		if errors.As(err, &sendErr) {
			reply.Text = sendErr.Text
		}
		if errors.Is(err, errs.ErrSessionExpired) {
			s.cancel()
		}
		return reply
	}
	metrics.WebsocketCommands.WithLabelValues(cmd.Type, "ok").Inc()
	return reply
}
