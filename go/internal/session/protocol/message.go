package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for every frame exchanged between a participant
// and the session hub, in either direction.
type Message struct {
	Type       MessageType     `json:"type"`                  // Message type discriminator
	SessionID  string          `json:"session_id"`            // Session UUID
	ServerTime *time.Time      `json:"server_time,omitempty"` // Authoritative hub time, set on hub-originated messages
	Data       json.RawMessage `json:"data,omitempty"`        // Type-specific payload
}

// MessageType discriminates the payload carried in a Message.
type MessageType string

// Participant to hub.
const (
	MessageTypePing            MessageType = "ping"
	MessageTypeStateRequest    MessageType = "state_request"
	MessageTypeSubmit          MessageType = "submit"
	MessageTypeReadyForResults MessageType = "ready_for_results"
	MessageTypeReadyToContinue MessageType = "ready_to_continue"
)

// Hub to participant.
const (
	MessageTypePhaseState         MessageType = "phase_state"
	MessageTypePhaseStart         MessageType = "phase_start"
	MessageTypeSubmissionAck      MessageType = "submission_ack"
	MessageTypePhaseComplete      MessageType = "phase_complete"
	MessageTypeResultsReady       MessageType = "results_ready"
	MessageTypeAllReadyToContinue MessageType = "all_ready_to_continue"
	MessageTypeSessionEnded       MessageType = "session_ended"
	MessageTypeParticipantRemoved MessageType = "removed"
)

// WebSocket close codes. 1000 and the removal code are deliberate closures;
// anything else counts as abnormal and is eligible for automatic reconnect.
const (
	CloseCodeNormal  = 1000
	CloseCodeRemoved = 4001
)

// DeliberateClose reports whether a close code signals an on-purpose closure
// that must not trigger a reconnect attempt.
func DeliberateClose(code int) bool {
	return code == CloseCodeNormal || code == CloseCodeRemoved
}

// NewMessage builds an envelope around the given payload. A nil payload
// produces an envelope with no data section (e.g. ping).
func NewMessage(msgType MessageType, sessionID string, payload interface{}) (*Message, error) {
	msg := &Message{
		Type:      msgType,
		SessionID: sessionID,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
		}
		msg.Data = data
	}
	return msg, nil
}

// Stamped returns a copy of the message carrying the given authoritative
// timestamp. Hub-side send paths stamp every outgoing envelope so that
// participants can continuously re-derive their clock offset.
func (m *Message) Stamped(serverTime time.Time) *Message {
	stamped := *m
	stamped.ServerTime = &serverTime
	return &stamped
}

// ParsePayload decodes the data section into the payload struct matching the
// message type. Unknown types return (nil, nil) so callers can route them to
// a catch-all without treating them as errors.
func ParsePayload(msg *Message) (interface{}, error) {
	switch msg.Type {
	case MessageTypePing:
		return nil, nil

	case MessageTypeStateRequest:
		var payload StateRequestPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypeSubmit:
		var payload SubmitPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypeReadyForResults:
		var payload ReadyForResultsPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypeReadyToContinue:
		var payload ReadyToContinuePayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypePhaseState:
		var payload PhaseStatePayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypePhaseStart:
		var payload PhaseStartPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypeSubmissionAck:
		var payload SubmissionAckPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypePhaseComplete:
		var payload PhaseCompletePayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypeResultsReady:
		var payload ResultsReadyPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypeAllReadyToContinue:
		var payload AllReadyToContinuePayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypeSessionEnded:
		var payload SessionEndedPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypeParticipantRemoved:
		var payload ParticipantRemovedPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil // Unknown message type
	}
}
