package protocol

import "encoding/json"

// Version is the live feed protocol version.
const Version = "1.0"

// Feed message types.
const (
	TypeSubscribe    = "SUBSCRIBE"
	TypeWelcome      = "WELCOME"
	TypeLifeDay      = "LIFEDAY"
	TypeIntersection = "INTERSECTION"
	TypeAgent        = "AGENT"
	TypePing         = "PING"
	TypeError        = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// SUBSCRIBE (client -> server). An empty Agents list means every agent.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Agents          []string `json:"agents,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	Agents          int    `json:"agents"`
	LifeDays        int    `json:"life_days"`
}

// EventMsg carries one LIFEDAY, INTERSECTION or AGENT event.
type EventMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Seq             uint64          `json:"seq"`
	TimeMS          int64           `json:"time_ms"`
	Agents          []string        `json:"agents"`
	Data            json.RawMessage `json:"data"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
