// Package stt streams meeting audio to a speech-to-text provider over a
// duplex websocket and surfaces transcription results.
//
// The wire contract is Deepgram-compatible: outbound binary 16-bit PCM
// frames, inbound JSON messages carrying channel.alternatives[0].transcript
// and an is_final flag. Interim results are surfaced as-is; deciding what
// feeds the extraction pipeline is the caller's concern.
package stt

import (
	"time"
)

// Result is one transcription message from the provider.
type Result struct {
	Text       string
	IsFinal    bool
	Confidence float64
	ReceivedAt time.Time
}

// Config holds speech-to-text connection parameters.
type Config struct {
	// URL is the streaming endpoint. Scheme may be http(s) or ws(s);
	// http schemes are rewritten to their websocket equivalents.
	URL    string
	APIKey string

	Model          string
	Language       string
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
	Punctuate      bool

	// KeepAliveInterval is how often a keepalive text frame is sent
	// while the stream is open.
	KeepAliveInterval time.Duration
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = "wss://api.deepgram.com/v1/listen"
	}
	if c.Model == "" {
		c.Model = "nova-2"
	}
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.Encoding == "" {
		c.Encoding = "linear16"
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = 5 * time.Second
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	return c
}
