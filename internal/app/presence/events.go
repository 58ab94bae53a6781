/*
Package presence contains the core logic for tracking connected principals, room
membership, and relaying named events between live WebSocket connections.

This file defines the wire format: the event envelope exchanged over the WebSocket
and the fixed payload shapes of every named event the relay supports. Delivery is
at-most-once and fire-and-forget throughout; no event carries an acknowledgment.
*/
package presence

import (
	"encoding/json"
	"time"
)

// Inbound event names accepted from clients.
const (
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventSendMessage    = "send_message"
	EventAdminBroadcast = "admin_broadcast"
	EventActivityUpdate = "activity_update"
)

// Outbound event names emitted by the server. workout_assigned and
// workout_completed are accepted inbound under the same names.
const (
	EventUsersOnline       = "users_online"
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventWorkoutAssigned   = "workout_assigned"
	EventWorkoutCompleted  = "workout_completed"
	EventMessageReceived   = "message_received"
	EventAdminAnnouncement = "admin_announcement"
	EventStudentActivity   = "student_activity"
)

// Envelope is the framing for every message on the wire: a named event plus an
// event-specific JSON payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeEvent marshals the payload and wraps it in an Envelope, returning the
// raw bytes ready to be written to a connection.
func EncodeEvent(event string, payload any) ([]byte, error) {
	var raw json.RawMessage

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}

	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// RoomPayload is the inbound payload for join_room and leave_room.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// PresencePayload is broadcast to the admins room as user_joined / user_left
// when a regular user connects or disconnects.
type PresencePayload struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// WorkoutAssignedPayload notifies a student that an admin assigned them a workout.
// Inbound it carries no timestamp; the relay stamps it on delivery.
type WorkoutAssignedPayload struct {
	StudentID    string    `json:"studentId"`
	StudentName  string    `json:"studentName"`
	WorkoutID    string    `json:"workoutId"`
	WorkoutName  string    `json:"workoutName"`
	PersonalID   string    `json:"personalId"`
	PersonalName string    `json:"personalName"`
	Timestamp    time.Time `json:"timestamp"`
}

// WorkoutCompletedPayload notifies a personal trainer that a student finished
// an assigned workout.
type WorkoutCompletedPayload struct {
	StudentID   string    `json:"studentId"`
	StudentName string    `json:"studentName"`
	WorkoutID   string    `json:"workoutId"`
	WorkoutName string    `json:"workoutName"`
	PersonalID  string    `json:"personalId"`
	Timestamp   time.Time `json:"timestamp"`
}

// SendMessagePayload is the inbound payload for send_message.
type SendMessagePayload struct {
	RecipientID string `json:"recipientId"`
	Message     string `json:"message"`
	Type        string `json:"type,omitempty"`
}

// MessageReceivedPayload is the outbound unicast delivered to the recipient of
// a send_message event. Sender identity comes from the registered principal,
// never from the client-supplied payload.
type MessageReceivedPayload struct {
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Message    string    `json:"message"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
}

// AdminBroadcastPayload is the inbound payload for admin_broadcast.
type AdminBroadcastPayload struct {
	Message string `json:"message"`
}

// AnnouncementPayload is broadcast to every connection except the sender when
// an admin issues an announcement.
type AnnouncementPayload struct {
	Message   string    `json:"message"`
	AdminName string    `json:"adminName"`
	Timestamp time.Time `json:"timestamp"`
}

// ActivityUpdatePayload is the inbound payload for activity_update. Details is
// forwarded opaquely; the relay only inspects its personalId field for routing.
type ActivityUpdatePayload struct {
	Activity string          `json:"activity"`
	Details  json.RawMessage `json:"details,omitempty"`
}

// activityDetails extracts the routing target from an activity_update Details blob.
type activityDetails struct {
	PersonalID string `json:"personalId"`
}

// StudentActivityPayload is the outbound unicast delivered to a personal trainer
// when one of their students reports activity.
type StudentActivityPayload struct {
	StudentID   string          `json:"studentId"`
	StudentName string          `json:"studentName"`
	Activity    string          `json:"activity"`
	Details     json.RawMessage `json:"details,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}
