package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrNotConnected     = errors.New("stt: not connected")
	ErrAlreadyConnected = errors.New("stt: already connected")
)

// Client is a streaming speech-to-text connection. One Client serves one
// capture session; Connect then SendAudio from one producer while results
// are consumed from the channel, and Close when the session stops.
type Client struct {
	cfg    Config
	logger *zap.Logger

	// connMu guards the connection handle and all writes; gorilla
	// permits a single concurrent writer.
	connMu  sync.Mutex
	conn    *websocket.Conn
	closed  bool
	results chan Result
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewClient creates a speech-to-text client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// deepgramMessage is the inbound transcription payload.
type deepgramMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// controlMessage is an outbound text frame (KeepAlive, CloseStream).
type controlMessage struct {
	Type string `json:"type"`
}

// Connect dials the provider and starts the read and keepalive loops.
// Results arrive on the returned channel until the stream ends; the
// channel is closed when the connection drops or Close is called.
func (c *Client) Connect(ctx context.Context) (<-chan Result, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return nil, ErrAlreadyConnected
	}

	streamURL, err := c.buildURL()
	if err != nil {
		return nil, fmt.Errorf("build stream url: %w", err)
	}

	headers := http.Header{}
	if c.cfg.APIKey != "" {
		headers.Set("Authorization", "Token "+c.cfg.APIKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, streamURL, headers)
	if err != nil {
		return nil, fmt.Errorf("dial stt stream: %w", err)
	}
	resp.Body.Close()

	c.conn = conn
	c.closed = false
	c.results = make(chan Result, 64)
	c.done = make(chan struct{})

	c.logger.Info("stt stream connected",
		zap.String("model", c.cfg.Model),
		zap.Int("sample_rate", c.cfg.SampleRate))

	c.wg.Add(2)
	go c.readLoop(conn, c.results)
	go c.keepaliveLoop()

	return c.results, nil
}

// buildURL rewrites the scheme for websocket use and attaches the
// streaming query parameters.
func (c *Client) buildURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	q := u.Query()
	q.Set("model", c.cfg.Model)
	q.Set("language", c.cfg.Language)
	q.Set("encoding", c.cfg.Encoding)
	q.Set("sample_rate", strconv.Itoa(c.cfg.SampleRate))
	q.Set("channels", strconv.Itoa(c.cfg.Channels))
	q.Set("interim_results", strconv.FormatBool(c.cfg.InterimResults))
	q.Set("punctuate", strconv.FormatBool(c.cfg.Punctuate))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// readLoop drains inbound messages until the connection ends, then closes
// the results channel.
func (c *Client) readLoop(conn *websocket.Conn, results chan<- Result) {
	defer c.wg.Done()
	defer close(results)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("stt stream closed", zap.Error(err))
			} else {
				c.logger.Warn("stt stream read failed", zap.Error(err))
			}
			return
		}

		var msg deepgramMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("skipping unparseable stt message", zap.Error(err))
			continue
		}

		// Metadata, UtteranceEnd and friends carry no transcript.
		if len(msg.Channel.Alternatives) == 0 {
			continue
		}
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}

		results <- Result{
			Text:       alt.Transcript,
			IsFinal:    msg.IsFinal,
			Confidence: alt.Confidence,
			ReceivedAt: time.Now(),
		}
	}
}

// keepaliveLoop keeps the provider from idling out the stream during
// silence.
func (c *Client) keepaliveLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.writeControl(controlMessage{Type: "KeepAlive"}); err != nil {
				c.logger.Debug("stt keepalive failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) writeControl(msg controlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil || c.closed {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// SendAudio writes one PCM frame to the stream.
func (c *Client) SendAudio(frame []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil || c.closed {
		return ErrNotConnected
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("write audio frame: %w", err)
	}
	return nil
}

// Close finishes the stream: it tells the provider the audio is done,
// performs the websocket close handshake, and waits for the loops to
// drain. Safe to call more than once.
func (c *Client) Close() error {
	c.connMu.Lock()
	if c.conn == nil || c.closed {
		c.connMu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn

	// Best effort: the provider flushes pending finals on CloseStream.
	if data, err := json.Marshal(controlMessage{Type: "CloseStream"}); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	c.conn = nil
	close(c.done)
	c.connMu.Unlock()

	c.wg.Wait()
	return nil
}
