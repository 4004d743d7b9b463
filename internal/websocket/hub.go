package websocket

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/speakai/server/domain/entities"
	"github.com/speakai/server/domain/repositories"
	"github.com/speakai/server/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Maximum buffered utterance size across chunks.
	maxUtteranceSize = 10 * 1024 * 1024

	// Time budget for processing one finished utterance.
	processTimeout = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active live practice clients
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	transcriber usecase.AudioTranscriber
	feedback    *usecase.FeedbackService
	tts         repositories.TextToSpeech
	ttsVoice    string

	logger *zap.Logger
}

// NewHub creates a new live practice hub. tts may be nil when no speech
// service is configured; spoken replies are then skipped.
func NewHub(
	transcriber usecase.AudioTranscriber,
	feedback *usecase.FeedbackService,
	tts repositories.TextToSpeech,
	ttsVoice string,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		transcriber: transcriber,
		feedback:    feedback,
		tts:         tts,
		ttsVoice:    ttsVoice,
		logger:      logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("userID", client.userID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.shutdown()
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("userID", client.userID))
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. closed guards against sends
	// after the hub has shut the channel; practice goroutines can outlive
	// the connection.
	send   chan WriteData
	sendMu sync.Mutex
	closed bool

	// Connection id; one user may hold several connections.
	id     string
	userID string

	logger    *zap.Logger
	validator *MessageValidator

	// Audio chunks buffered until the final chunk arrives.
	buffer   bytes.Buffer
	lastSeq  int
	encoding string
	language string

	mutex sync.Mutex
}

// HandleWebSocketWithAuth handles websocket requests with a pre-authenticated user ID
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, userID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, 256),
		id:        uuid.NewString(),
		userID:    userID,
		logger:    logger,
		validator: NewMessageValidator(),
		lastSeq:   -1,
	}

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage validates and dispatches one incoming message
func (c *Client) processMessage(message []byte) {
	parsed, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected message", zap.String("userID", c.userID), zap.Error(err))
		c.sendJSON(CreateErrorMessage("invalid_message", "Message validation failed", err.Error()))
		return
	}

	switch msg := parsed.(type) {
	case *AudioChunkMessage:
		c.handleAudioChunk(msg)
	case *PingMessage:
		c.sendJSON(CreatePongMessage(msg.Data))
	}
}

// handleAudioChunk buffers one chunk and runs the practice pipeline when
// the final chunk arrives
func (c *Client) handleAudioChunk(msg *AudioChunkMessage) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if msg.ChunkSeq <= c.lastSeq {
		c.sendJSON(CreateErrorMessage("out_of_order_chunk", "Chunk sequence went backwards", ""))
		c.resetBuffer()
		return
	}
	c.lastSeq = msg.ChunkSeq
	c.encoding = msg.Encoding
	if msg.Language != "" {
		c.language = msg.Language
	}

	if msg.AudioData != "" {
		data, err := base64.StdEncoding.DecodeString(msg.AudioData)
		if err != nil {
			c.sendJSON(CreateErrorMessage("invalid_audio_data", "Audio data is not valid base64", ""))
			c.resetBuffer()
			return
		}
		if c.buffer.Len()+len(data) > maxUtteranceSize {
			c.sendJSON(CreateErrorMessage("utterance_too_large", "Buffered audio exceeds the limit", ""))
			c.resetBuffer()
			return
		}
		c.buffer.Write(data)
	}

	if !msg.IsFinal {
		return
	}

	audio := make([]byte, c.buffer.Len())
	copy(audio, c.buffer.Bytes())
	c.resetBuffer()

	if len(audio) == 0 {
		c.sendJSON(CreateErrorMessage("empty_utterance", "No audio received before the final chunk", ""))
		return
	}

	go c.runPractice(audio, msg)
}

func (c *Client) resetBuffer() {
	c.buffer.Reset()
	c.lastSeq = -1
}

// runPractice transcribes the buffered utterance, generates feedback and
// replies with a practice result
func (c *Client) runPractice(audio []byte, msg *AudioChunkMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	started := time.Now()

	transcription, available := "", false
	text, err := c.hub.transcriber.TranscribeBytes(ctx, audio, extensionForEncoding(msg.Encoding), c.language)
	switch {
	case err != nil:
		c.logger.Warn("Live transcription failed",
			zap.String("userID", c.userID), zap.Error(err))
		transcription = usecase.MsgTranscriptionUnavailable
	case strings.TrimSpace(text) == "":
		transcription = usecase.MsgEmptyTranscription
	default:
		transcription = text
		available = true
	}

	fb := c.hub.feedback.Generate(ctx, uuid.NewString(), entities.TargetAudio, c.userID,
		transcription, "", usecase.FeedbackContext{})

	result := CreatePracticeResultMessage(transcription, available, fb)
	result.ProcessingTime = time.Since(started).Milliseconds()

	if msg.Speak && c.hub.tts != nil {
		if spoken := c.synthesizeReply(ctx, fb, transcription); len(spoken) > 0 {
			result.AudioData = base64.StdEncoding.EncodeToString(spoken)
		}
	}

	c.sendJSON(result)

	c.logger.Info("Practice utterance processed",
		zap.String("userID", c.userID),
		zap.Bool("transcriptionAvailable", available),
		zap.Int64("processingMs", result.ProcessingTime))
}

// synthesizeReply speaks the first grammar correction, or the transcription
// itself when nothing needs correcting
func (c *Client) synthesizeReply(ctx context.Context, fb *entities.Feedback, transcription string) []byte {
	line := transcription
	if len(fb.Grammar) > 0 && fb.Grammar[0].Correction != "" {
		line = fb.Grammar[0].Correction
	}

	stream, err := c.hub.tts.Synthesize(ctx, repositories.SpeechRequest{
		Text:     line,
		Voice:    c.hub.ttsVoice,
		Format:   "mp3",
		Language: c.language,
	})
	if err != nil {
		c.logger.Warn("Reply synthesis failed", zap.Error(err))
		return nil
	}

	var audio bytes.Buffer
	for chunk := range stream {
		audio.Write(chunk)
	}
	return audio.Bytes()
}

// shutdown closes the send channel exactly once. Only the hub calls this,
// when the client unregisters.
func (c *Client) shutdown() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// sendJSON queues a message for the write pump, dropping the client when
// its queue is full. Messages for a client that already unregistered are
// discarded.
func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Send queue full, dropping client", zap.String("userID", c.userID))
		c.hub.unregister <- c
	}
}

// extensionForEncoding maps a live channel encoding to the file extension
// the transcription chain expects
func extensionForEncoding(encoding string) string {
	switch encoding {
	case "mp3":
		return ".mp3"
	case "opus":
		return ".ogg"
	default:
		return ".wav"
	}
}
