package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"parley/infrastructure/ws"
	"parley/internal/entity"
	"parley/internal/feed"
	"parley/internal/usecase"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebsocketHandler struct {
	hub    ws.IHub
	userUc usecase.UserUsecase
	feedUc usecase.FeedUsecase
	authUc usecase.AuthUsecase
}

func NewWebsocketHandler(hub ws.IHub, userUc usecase.UserUsecase, feedUc usecase.FeedUsecase, authUc usecase.AuthUsecase) *WebsocketHandler {
	return &WebsocketHandler{
		hub:    hub,
		userUc: userUc,
		feedUc: feedUc,
		authUc: authUc,
	}
}

// HandleWebSocket upgrades the connection and runs one feed engine for it.
// The socket is the view: commands go to the engine, engine events and
// out-of-band activity notifications come back.
func (h *WebsocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authUc.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}

	user, err := h.userUc.Get(ctx, claims.UserId)
	if err != nil {
		log.Printf("Get user error: %v", err)
		http.Error(w, "Unknown user", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Upgrade error: %v", err)
		return
	}

	engine, err := feed.NewEngine(user, h.feedUc, &notifyingCommitter{feedUc: h.feedUc, hub: h.hub}, h.feedUc)
	if err != nil {
		log.Printf("New engine error: %v", err)
		conn.Close()
		return
	}

	client := ws.NewClient(user.Id, h.hub, conn)
	h.hub.RegisterClient(client)

	go client.WritePump()
	go forwardEvents(engine, client)

	client.ReadPump(func(data []byte) {
		h.handleCommand(engine, data)
	})

	engine.Close()
}

func forwardEvents(engine *feed.Engine, client *ws.UserClient) {
	for ev := range engine.Events() {
		payload, err := encodeEvent(ev)
		if err != nil {
			log.Printf("Encode event error: %v", err)
			continue
		}
		client.Send(payload)
	}
}

func (h *WebsocketHandler) handleCommand(engine *feed.Engine, data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Printf("Unknown command: %v", err)
		return
	}

	switch cmd.Type {
	case CmdSelect:
		if cmd.RoomId == "" {
			return
		}
		engine.SelectRoom(cmd.RoomId)
	case CmdSubmit:
		engine.Submit(cmd.Text)
	case CmdScroll:
		engine.ViewportScroll(feed.Viewport{
			ScrollTop:    cmd.ScrollTop,
			ScrollHeight: cmd.ScrollHeight,
			ClientHeight: cmd.ClientHeight,
		})
	case CmdScrollToBottom:
		engine.ScrollToBottom()
	case CmdClearHistory:
		engine.ClearHistory()
	case CmdHideMessage:
		engine.HideMessage(cmd.MessageId)
	default:
		log.Printf("Unknown command type: %s", cmd.Type)
	}
}

// notifyingCommitter persists through the feed usecase and then pings other
// participants through the hub. Viewers of the room get the message from
// their own change stream; the notification is for everyone else's room
// list.
type notifyingCommitter struct {
	feedUc usecase.FeedUsecase
	hub    ws.IHub
}

func (c *notifyingCommitter) Commit(ctx context.Context, message entity.Message) (entity.Message, error) {
	committed, err := c.feedUc.Commit(ctx, message)
	if err != nil {
		return entity.Message{}, err
	}

	c.notify(committed)
	return committed, nil
}

func (c *notifyingCommitter) notify(message entity.Message) {
	payload, err := json.Marshal(ActivityPayload{
		Type:       "activity",
		RoomId:     message.RoomId,
		SenderId:   message.SenderId,
		SenderName: message.SenderName,
		MessageId:  message.Id,
	})
	if err != nil {
		log.Printf("Marshal activity error: %v", err)
		return
	}

	if peer := entity.DirectPeer(message.RoomId, message.SenderId); peer != "" {
		c.hub.SendToClient(peer, payload)
		return
	}
	c.hub.Broadcast(payload)
}
