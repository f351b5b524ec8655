package pubsub

import "fmt"

// ChannelRelay carries relay lifecycle events for one room.
const ChannelRelay = "collab:room:%s:relay"

// Relay event types.
const (
	EventRelayOpened = "relay_opened"
	EventRelayClosed = "relay_closed"
)

// RelayChannel returns the channel name for a room's relay events.
func RelayChannel(roomSlug string) string {
	return fmt.Sprintf(ChannelRelay, roomSlug)
}

// RelayOpenedPayload is published once a relay session is bridged.
type RelayOpenedPayload struct {
	SessionID     string `json:"session_id"`
	RoomID        string `json:"room_id"`
	ParticipantID string `json:"participant_id"`
	Nickname      string `json:"nickname"`
}

// RelayClosedPayload is published once both pumps of a relay session have stopped.
type RelayClosedPayload struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	ClosedBy      string `json:"closed_by"` // "client", "upstream", "server"
	CloseCode     int    `json:"close_code"`
	Reason        string `json:"reason,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
}
