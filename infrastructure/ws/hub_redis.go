package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisHub routes direct notifications across server instances: a user
// connected to another instance is reached through Redis pub/sub.
type RedisHub struct {
	clients map[string]*UserClient
	mu      sync.RWMutex

	redisClient *redis.Client
	pubsub      *redis.PubSub
	serverID    string

	Register   chan *UserClient
	Unregister chan *UserClient
	broadcast  chan []byte

	OnClientUnregister func(client *UserClient) error
}

type RedisMessage struct {
	FromServerID string `json:"fromServerId"`
	ToUserID     string `json:"toUserId"`
	Payload      []byte `json:"payload"`
}

func NewRedisHub(redisAddr string, serverID string) IHub {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	hub := &RedisHub{
		clients:     make(map[string]*UserClient),
		redisClient: rdb,
		serverID:    serverID,
		Register:    make(chan *UserClient),
		Unregister:  make(chan *UserClient),
		broadcast:   make(chan []byte, 256),
	}

	hub.pubsub = rdb.PSubscribe(context.Background(), "notify:*")

	return hub
}

func (h *RedisHub) Run() {
	go h.subscribeRedis()

	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if old, ok := h.clients[client.UserId]; ok && old != client {
				old.CloseSend()
			}
			h.clients[client.UserId] = client
			h.mu.Unlock()

			// Announce which server this user is on
			h.redisClient.Set(
				context.Background(),
				"user:"+client.UserId+":server",
				h.serverID,
				0,
			)

			log.Printf("[%s] %s connected", h.serverID, client.UserId)

		case client := <-h.Unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.UserId]; ok && current == client {
				delete(h.clients, client.UserId)
				client.CloseSend()

				h.redisClient.Del(
					context.Background(),
					"user:"+client.UserId+":server",
				)

				log.Printf("[%s] %s disconnected", h.serverID, client.UserId)
			}
			h.mu.Unlock()

			if h.OnClientUnregister != nil {
				if err := h.OnClientUnregister(client); err != nil {
					log.Printf("OnClientUnregister error: %v", err)
				}
			}

		case message := <-h.broadcast:
			h.broadcastLocal(message)
		}
	}
}

func (h *RedisHub) subscribeRedis() {
	ch := h.pubsub.Channel()

	log.Printf("[%s] Redis subscriber started", h.serverID)

	for msg := range ch {
		var redisMsg RedisMessage
		if err := json.Unmarshal([]byte(msg.Payload), &redisMsg); err != nil {
			log.Printf("Error unmarshaling Redis message: %v", err)
			continue
		}

		// Don't process messages we published ourselves
		if redisMsg.FromServerID == h.serverID {
			continue
		}

		h.mu.RLock()
		_, existsLocally := h.clients[redisMsg.ToUserID]
		h.mu.RUnlock()
		if !existsLocally {
			continue
		}

		h.SendToClient(redisMsg.ToUserID, redisMsg.Payload)
	}
}

// SendToClient delivers locally when the user is on this server, otherwise
// publishes to Redis for whichever server holds the connection.
func (h *RedisHub) SendToClient(userID string, message []byte) {
	h.mu.RLock()
	client, existsLocally := h.clients[userID]
	h.mu.RUnlock()

	if existsLocally {
		if !client.Send(message) {
			log.Printf("[%s] Failed to send to local client %s", h.serverID, userID)
		}
	} else {
		h.publishToRedis(userID, message)
	}
}

func (h *RedisHub) publishToRedis(userID string, message []byte) {
	ctx := context.Background()

	redisMsg := RedisMessage{
		FromServerID: h.serverID,
		ToUserID:     userID,
		Payload:      message,
	}

	msgBytes, err := json.Marshal(redisMsg)
	if err != nil {
		log.Printf("Error marshaling Redis message: %v", err)
		return
	}

	err = h.redisClient.Publish(ctx, "notify:"+userID, msgBytes).Err()
	if err != nil {
		log.Printf("Error publishing to Redis: %v", err)
		return
	}
}

func (h *RedisHub) broadcastLocal(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		client.Send(message)
	}
}

func (h *RedisHub) Broadcast(message []byte) {
	h.broadcast <- message
}

func (h *RedisHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *RedisHub) RegisterClient(client *UserClient) {
	h.Register <- client
}

func (h *RedisHub) UnregisterClient(client *UserClient) {
	h.Unregister <- client
}

func (h *RedisHub) SetOnClientUnregister(callback func(client *UserClient) error) {
	h.OnClientUnregister = callback
}
