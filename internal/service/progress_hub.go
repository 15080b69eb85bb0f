package service

import (
	"context"
	"encoding/json"
	"math_practice_backend/pkg/logger"
	"math_practice_backend/pkg/monitoring"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	shardCount     = 32
)

// 批改流水线的阶段标识，进度事件携带
const (
	StageUpload = "upload"
	StageOCR    = "ocr"
	StageParse  = "parse"
	StageGrade  = "grade"
	StageDetect = "detect"
	StageMark   = "mark"
	StageReport = "report"
	StageDone   = "done"
	StageFailed = "failed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ProgressUpdate 描述一张答题图片在批改流水线中的位置
type ProgressUpdate struct {
	SessionID  string `json:"session_id"`
	Stage      string `json:"stage"`
	ImageIndex int    `json:"image_index"`
	ImageCount int    `json:"image_count"`
	Message    string `json:"message"`
}

type Client struct {
	Hub    *ProgressHub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID uint
}

// readPump 只消费客户端的控制帧，批改进度是单向推送
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Error("WebSocket unexpected close", zap.Error(err), zap.Uint("userId", c.UserID))
			}
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if n := len(c.Send); n > 0 {
				for i := 0; i < n; i++ {
					w.Write(<-c.Send)
				}
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type shard struct {
	clients map[uint]*Client
	mu      sync.RWMutex
}

// ProgressHub 将批改进度事件推送给发起批改的用户。
// 多实例部署时通过 Redis 频道转发，保证事件能到达持有连接的实例。
type ProgressHub struct {
	shards     [shardCount]*shard
	register   chan *Client
	unregister chan *Client
	Redis      *redis.Client
	ctx        context.Context
}

func NewProgressHub(rdb *redis.Client) *ProgressHub {
	h := &ProgressHub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		Redis:      rdb,
		ctx:        context.Background(),
	}
	for i := 0; i < shardCount; i++ {
		h.shards[i] = &shard{
			clients: make(map[uint]*Client),
		}
	}
	return h
}

func (h *ProgressHub) getShard(userID uint) *shard {
	return h.shards[userID%shardCount]
}

type PubSubMessage struct {
	TargetUsers []uint          `json:"targetUsers"`
	Payload     json.RawMessage `json:"payload"`
}

func (h *ProgressHub) Run() {
	if h.Redis != nil {
		pubsub := h.Redis.Subscribe(h.ctx, "grading_progress")
		go func() {
			ch := pubsub.Channel()
			for msg := range ch {
				var psMsg PubSubMessage
				if err := json.Unmarshal([]byte(msg.Payload), &psMsg); err != nil {
					logger.Log.Error("PubSub unmarshal error", zap.Error(err))
					continue
				}
				h.pushToLocalUsers(psMsg.TargetUsers, psMsg.Payload)
			}
		}()
	}

	for {
		select {
		case client := <-h.register:
			s := h.getShard(client.UserID)
			s.mu.Lock()
			if old, ok := s.clients[client.UserID]; ok {
				close(old.Send)
			}
			s.clients[client.UserID] = client
			s.mu.Unlock()
			monitoring.ProgressClients.Inc()

		case client := <-h.unregister:
			s := h.getShard(client.UserID)
			s.mu.Lock()
			if current, ok := s.clients[client.UserID]; ok && current == client {
				delete(s.clients, client.UserID)
				close(client.Send)
				monitoring.ProgressClients.Dec()
			}
			s.mu.Unlock()
		}
	}
}

// Stop 关闭所有连接
func (h *ProgressHub) Stop() {
	logger.Log.Info("ProgressHub stopping: closing connections...")

	closed := 0
	for i := 0; i < shardCount; i++ {
		s := h.shards[i]
		s.mu.Lock()
		for userID, client := range s.clients {
			close(client.Send)
			delete(s.clients, userID)
			closed++
		}
		s.mu.Unlock()
	}

	monitoring.ProgressClients.Set(0)
	logger.Log.Info("ProgressHub stopped", zap.Int("closedConnections", closed))
}

// PushProgress 向指定用户推送一条批改进度事件
func (h *ProgressHub) PushProgress(userID uint, update ProgressUpdate) {
	monitoring.ProgressEventCounter.WithLabelValues(update.Stage).Inc()
	h.pushToUsers([]uint{userID}, WSMessage{Type: "GRADING_PROGRESS", Data: update})
}

func (h *ProgressHub) pushToUsers(userIDs []uint, msg WSMessage) {
	// 避免二次序列化
	msgBytes, _ := json.Marshal(msg)

	if h.Redis == nil {
		h.pushToLocalUsers(userIDs, msgBytes)
		return
	}

	psMsg := PubSubMessage{
		TargetUsers: userIDs,
		Payload:     msgBytes,
	}
	payload, _ := json.Marshal(psMsg)
	h.Redis.Publish(h.ctx, "grading_progress", payload)
}

func (h *ProgressHub) pushToLocalUsers(userIDs []uint, payload []byte) {
	for _, id := range userIDs {
		s := h.getShard(id)
		s.mu.RLock()
		if client, ok := s.clients[id]; ok {
			select {
			case client.Send <- payload:
			default:
			}
		}
		s.mu.RUnlock()
	}
}

func ServeProgressWS(hub *ProgressHub, w http.ResponseWriter, r *http.Request, userID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.Uint("userId", userID))
		return
	}
	client := &Client{
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: userID,
	}
	client.Hub.register <- client

	go client.writePump()
	go client.readPump()
}
