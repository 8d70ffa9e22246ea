package amqp

import (
	"encoding/json"
	"time"
)

// Event types carried by EventMessage.
const (
	EventFamilyCreated = "family_created"
	EventMemberInvited = "member_invited"
	EventRoleChanged   = "role_changed"
	EventMemberRemoved = "member_removed"
	EventTransfer      = "transfer"
	EventDailyEntry    = "daily_entry"
)

// EventMessage is the single message shape published for every directory
// and ledger mutation. The audit worker consumes these and appends them
// to the audit collection.
type EventMessage struct {
	Type      string    `json:"type"`
	FamilyID  string    `json:"familyId,omitempty"`
	ActorUID  string    `json:"actorUid,omitempty"`
	MemberUID string    `json:"memberUid,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	SourceID  string    `json:"sourceId,omitempty"`
	DestID    string    `json:"destId,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEventMessage(eventType string) *EventMessage {
	return &EventMessage{Type: eventType, Timestamp: time.Now()}
}

// ToJSON converts the message to JSON bytes
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessageFromJSON creates a message from JSON bytes
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
