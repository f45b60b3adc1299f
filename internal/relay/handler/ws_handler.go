package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cb3tech/moshcast-live/internal/config"
	"github.com/cb3tech/moshcast-live/internal/domain"
	"github.com/cb3tech/moshcast-live/internal/relay/hub"
	"github.com/cb3tech/moshcast-live/internal/relay/service"
	"github.com/cb3tech/moshcast-live/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub     *hub.Hub
	service service.StreamService
	wsCfg   config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.StreamService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
	}
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.L().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	h.hub.Register(client)

	// The greeting carries the id this connection is known by, so the
	// client can recognize its own chat echoes.
	client.SendMessage(&domain.HelloMessage{
		Type:   domain.MsgTypeHello,
		ConnID: client.ID,
	})

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleMessage)
		if err := h.service.HandleDisconnect(context.Background(), client); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("disconnect cleanup failed")
		}
	}()
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewStreamError(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	ctx := context.Background()

	switch base.Type {
	case domain.MsgTypeAuth:
		var msg domain.AuthMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewStreamError(domain.ErrCodeBadRequest, "invalid auth message"))
			return
		}
		if err := h.service.HandleAuth(ctx, client, msg.Token); err != nil {
			log.L().Debug().Err(err).Str(log.FieldConnID, client.ID).Msg("auth failed")
		}

	case domain.MsgTypeHostStart:
		var msg domain.HostStartMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewStreamError(domain.ErrCodeBadRequest, "invalid host:start message"))
			return
		}
		if err := h.service.HandleHostStart(ctx, client, msg); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("host start failed")
		}

	case domain.MsgTypeHostUpdate:
		var msg domain.HostUpdateMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewStreamError(domain.ErrCodeBadRequest, "invalid host:update message"))
			return
		}
		if err := h.service.HandleHostUpdate(ctx, client, msg); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("host update failed")
		}

	case domain.MsgTypeHostEnd:
		if err := h.service.HandleHostEnd(ctx, client); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("host end failed")
		}

	case domain.MsgTypeListenerJoin:
		var msg domain.ListenerJoinMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewStreamError(domain.ErrCodeBadRequest, "invalid listener:join message"))
			return
		}
		if err := h.service.HandleListenerJoin(ctx, client, msg); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("listener join failed")
		}

	case domain.MsgTypeListenerLeave:
		if err := h.service.HandleListenerLeave(ctx, client); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("listener leave failed")
		}

	case domain.MsgTypeChatSend:
		var msg domain.ChatSendMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewStreamError(domain.ErrCodeBadRequest, "invalid chat:send message"))
			return
		}
		if err := h.service.HandleChat(ctx, client, msg.Text); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("chat send failed")
		}

	case domain.MsgTypePing:
		client.SendMessage(map[string]string{"type": domain.MsgTypePong})

	default:
		client.SendMessage(domain.NewStreamError(domain.ErrCodeBadRequest, "unknown message type"))
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}
