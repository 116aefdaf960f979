// ABOUTME: Level feed message type definitions
// ABOUTME: Defines the JSON envelope and payloads exchanged on the feed
package protocol

import (
	"encoding/json"
	"fmt"
)

const (
	// ProtocolVersion is the level feed protocol version
	ProtocolVersion = 1

	// LevelsPath is the websocket endpoint of the feed
	LevelsPath = "/levels"
)

// Message types
const (
	TypeClientHello   = "client/hello"
	TypeClientGoodbye = "client/goodbye"
	TypeServerHello   = "server/hello"
	TypeServerError   = "server/error"
	TypeFormat        = "format"
	TypeLevels        = "levels"
	TypeState         = "state"
)

// Message is the top-level wrapper for all feed messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// envelope is Message with the payload left undecoded
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ClientHello is sent by watchers to open the feed
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// DeviceInfo contains capture device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// ServerHello is the capture side's response to client/hello
type ServerHello struct {
	ServerID   string      `json:"server_id"`
	SessionID  string      `json:"session_id"`
	Name       string      `json:"name"`
	Version    int         `json:"version"`
	DeviceInfo *DeviceInfo `json:"device_info,omitempty"`
}

// ServerError reports a rejected connection
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ClientGoodbye is sent before a watcher disconnects
type ClientGoodbye struct {
	Reason string `json:"reason"`
}

// FormatInfo describes the negotiated capture format. Channels is zero
// while no format is negotiated.
type FormatInfo struct {
	SampleFormat string   `json:"sample_format"`
	SampleRate   int      `json:"sample_rate"`
	Channels     int      `json:"channels"`
	Positions    []uint32 `json:"positions,omitempty"`
}

// LevelsUpdate carries the latest per-channel peaks
type LevelsUpdate struct {
	Timestamp int64     `json:"timestamp"` // microseconds since the feed started
	Peaks     []float32 `json:"peaks"`
	Levels    []int     `json:"levels"` // quantized display levels
	Updates   uint64    `json:"updates"`
}

// StateUpdate reports the capture session state and counters
type StateUpdate struct {
	State     string `json:"state"`
	Processed uint64 `json:"processed"`
	Underruns uint64 `json:"underruns"`
	Malformed uint64 `json:"malformed"`
	Released  uint64 `json:"released"`
}

// Decode parses a raw feed message, returning its type and payload bytes
func Decode(data []byte) (string, json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("invalid message: %w", err)
	}
	if env.Type == "" {
		return "", nil, fmt.Errorf("message without type")
	}
	return env.Type, env.Payload, nil
}
