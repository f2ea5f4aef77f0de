package server

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"arscope/internal/encoder"
	"arscope/internal/preview"
)

const (
	// wsWriteWait は1フレームの書き込み待ち時間
	wsWriteWait = 5 * time.Second

	// wsPingInterval は接続確認の間隔
	wsPingInterval = 30 * time.Second
)

// FrameHub はシンクに届いたフレームをWebSocketクライアントへ配信する
//
// preview.FrameSink を実装する。OnFrame はワーカー上で呼ばれるため、
// 送信はクライアント毎のゴルーチンで行い、遅いクライアントには最新のフレームだけを送る。
type FrameHub struct {
	encoder  encoder.Encoder
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*hubClient
	frames  uint64
	closed  bool
}

type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *hubClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewFrameHub は新しいFrameHubを作成する
func NewFrameHub(enc encoder.Encoder) *FrameHub {
	return &FrameHub{
		encoder: enc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*hubClient),
	}
}

// OnFrame はフレームをJPEGにして全クライアントの送信キューへ入れる
func (h *FrameHub) OnFrame(frame preview.Frame) {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n == 0 {
		return
	}

	data, err := h.encoder.Encode(frame.Data, frame.Width, frame.Height, frame.Format)
	if err != nil {
		log.Printf("配信フレームの変換に失敗 (seq=%d): %v", frame.Sequence, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames++
	for _, c := range h.clients {
		sendLatest(c.send, data)
	}
}

// ServeHTTP は接続をWebSocketに切り替え、切断されるまでフレームを送り続ける
func (h *FrameHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocketへの切り替えに失敗: %v", err)
		return
	}

	client := &hubClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 1),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client.id] = client
	h.mu.Unlock()

	log.Printf("WebSocketクライアントが接続しました: %s (%s)", client.id, r.RemoteAddr)

	go h.writePump(client)
	h.readPump(client)

	h.mu.Lock()
	delete(h.clients, client.id)
	h.mu.Unlock()
	client.close()

	log.Printf("WebSocketクライアントが切断しました: %s", client.id)
}

// readPump はクライアントが切断するまで受信を読み捨てる
func (h *FrameHub) readPump(c *hubClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump は送信キューのフレームをクライアントへ書き込む
func (h *FrameHub) writePump(c *hubClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Printf("WebSocketへの書き込みに失敗 (%s): %v", c.id, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Clients は接続中のクライアント数を返す
func (h *FrameHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Frames は配信したフレーム数を返す
func (h *FrameHub) Frames() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.frames
}

// Close は全ての接続を閉じ、以降の接続を拒否する
func (h *FrameHub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
		c.close()
	}
}
