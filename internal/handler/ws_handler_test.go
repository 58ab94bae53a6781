package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gympulse/internal/app/presence"
	"gympulse/internal/configs"
	"gympulse/internal/pkg/auth/token"
)

// newTestServer spins up a full Router backed by a fresh Hub.
func newTestServer(t *testing.T, cfg *configs.AppConfig) (*httptest.Server, *presence.Hub) {
	t.Helper()

	if cfg == nil {
		cfg = &configs.AppConfig{
			Environment:    "development",
			Port:           8080,
			AllowedOrigins: []string{},
		}
	}

	hub := presence.NewHub()
	t.Cleanup(hub.Shutdown)

	ts := httptest.NewServer(Router(&AppDeps{Hub: hub, Config: cfg, StartedAt: time.Now()}))
	t.Cleanup(ts.Close)

	return ts, hub
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
}

func dialWS(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, query), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Dial(%q) failed: %v", query, err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()

	data, err := presence.EncodeEvent(event, payload)
	if err != nil {
		t.Fatalf("EncodeEvent(%q) failed: %v", event, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("WriteMessage(%q) failed: %v", event, err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) presence.Envelope {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var envelope presence.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("invalid envelope %q: %v", data, err)
	}

	return envelope
}

// expectEvent reads the next event and fails unless it carries the wanted name.
// Relying on per-connection FIFO, tests use a deliverable marker event to prove
// that an earlier event was (correctly) never sent.
func expectEvent(t *testing.T, conn *websocket.Conn, want string) presence.Envelope {
	t.Helper()

	envelope := readEvent(t, conn)
	if envelope.Event != want {
		t.Fatalf("received event %q; want %q", envelope.Event, want)
	}
	return envelope
}

func decodePayload[T any](t *testing.T, envelope presence.Envelope) T {
	t.Helper()

	var payload T
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		t.Fatalf("failed to decode %q payload: %v", envelope.Event, err)
	}
	return payload
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHandshakeRejection(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	tests := []struct {
		name  string
		query string
	}{
		{name: "missing username", query: "userId=u1"},
		{name: "missing userId", query: "username=alice"},
		{name: "missing both", query: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, tt.query), nil)
			if err == nil {
				conn.Close()
				t.Fatal("handshake succeeded; want rejection")
			}
			if resp == nil {
				t.Fatal("no HTTP response returned for rejected handshake")
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("handshake rejection status = %d; want %d", resp.StatusCode, http.StatusUnauthorized)
			}
		})
	}
}

func TestConnectReceivesSnapshot(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	conn := dialWS(t, ts, "userId=u1&username=alice&role=user")

	snapshot := decodePayload[[]presence.OnlineUser](t, expectEvent(t, conn, presence.EventUsersOnline))

	if len(snapshot) != 1 {
		t.Fatalf("users_online snapshot has %d entries; want 1", len(snapshot))
	}
	if snapshot[0].UserID != "u1" {
		t.Errorf("snapshot[0].UserID = %q; want %q", snapshot[0].UserID, "u1")
	}
	if snapshot[0].DisplayName != "alice" {
		t.Errorf("snapshot[0].DisplayName = %q; want username fallback %q", snapshot[0].DisplayName, "alice")
	}
	if snapshot[0].Role != presence.RoleUser {
		t.Errorf("snapshot[0].Role = %q; want %q", snapshot[0].Role, presence.RoleUser)
	}
	if snapshot[0].ConnID == "" {
		t.Error("snapshot[0].ConnID is empty; want an opaque connection handle")
	}
}

func TestPresenceLifecycle(t *testing.T) {
	ts, hub := newTestServer(t, nil)

	admin := dialWS(t, ts, "userId=a1&username=anna&role=admin&displayName=Anna")
	expectEvent(t, admin, presence.EventUsersOnline)

	user := dialWS(t, ts, "userId=u1&username=bob&role=user")

	userSnapshot := decodePayload[[]presence.OnlineUser](t, expectEvent(t, user, presence.EventUsersOnline))
	if len(userSnapshot) != 2 {
		t.Fatalf("user's users_online snapshot has %d entries; want 2", len(userSnapshot))
	}

	joined := decodePayload[presence.PresencePayload](t, expectEvent(t, admin, presence.EventUserJoined))
	if joined.UserID != "u1" {
		t.Errorf("user_joined.UserID = %q; want %q", joined.UserID, "u1")
	}
	if joined.Role != presence.RoleUser {
		t.Errorf("user_joined.Role = %q; want %q", joined.Role, presence.RoleUser)
	}

	user.Close()

	left := decodePayload[presence.PresencePayload](t, expectEvent(t, admin, presence.EventUserLeft))
	if left.UserID != "u1" {
		t.Errorf("user_left.UserID = %q; want %q", left.UserID, "u1")
	}

	adminSnapshot := decodePayload[[]presence.OnlineUser](t, expectEvent(t, admin, presence.EventUsersOnline))
	if len(adminSnapshot) != 1 {
		t.Fatalf("post-disconnect users_online has %d entries; want 1", len(adminSnapshot))
	}
	for _, entry := range adminSnapshot {
		if entry.UserID == "u1" {
			t.Error("post-disconnect users_online still contains the departed user")
		}
	}

	waitFor(t, func() bool { return hub.OnlineCount() == 1 }, "registry still counts the departed user")
}

func TestAdminBroadcastPermission(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	admin := dialWS(t, ts, "userId=a1&username=anna&role=admin&displayName=Anna")
	expectEvent(t, admin, presence.EventUsersOnline)

	user := dialWS(t, ts, "userId=u1&username=bob&role=user")
	expectEvent(t, user, presence.EventUsersOnline)
	expectEvent(t, admin, presence.EventUserJoined)

	// A non-admin announcement must never reach anyone. The follow-up direct
	// message proves the forbidden broadcast was dropped: FIFO delivery would
	// otherwise surface the announcement first.
	sendEvent(t, user, presence.EventAdminBroadcast, presence.AdminBroadcastPayload{Message: "should be ignored"})
	sendEvent(t, user, presence.EventSendMessage, presence.SendMessagePayload{RecipientID: "a1", Message: "marker-1"})

	marker := decodePayload[presence.MessageReceivedPayload](t, expectEvent(t, admin, presence.EventMessageReceived))
	if marker.Message != "marker-1" {
		t.Fatalf("marker message = %q; want %q", marker.Message, "marker-1")
	}

	// An admin announcement reaches everyone except the sender.
	sendEvent(t, admin, presence.EventAdminBroadcast, presence.AdminBroadcastPayload{Message: "gym closes at 22h"})

	announcement := decodePayload[presence.AnnouncementPayload](t, expectEvent(t, user, presence.EventAdminAnnouncement))
	if announcement.Message != "gym closes at 22h" {
		t.Errorf("admin_announcement.Message = %q; want %q", announcement.Message, "gym closes at 22h")
	}
	if announcement.AdminName != "Anna" {
		t.Errorf("admin_announcement.AdminName = %q; want %q", announcement.AdminName, "Anna")
	}

	// The sender must not hear its own announcement.
	sendEvent(t, user, presence.EventSendMessage, presence.SendMessagePayload{RecipientID: "a1", Message: "marker-2"})
	marker = decodePayload[presence.MessageReceivedPayload](t, expectEvent(t, admin, presence.EventMessageReceived))
	if marker.Message != "marker-2" {
		t.Fatalf("admin received %q after own announcement; echo suppression broken", marker.Message)
	}
}

func TestDirectMessageRelay(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	admin := dialWS(t, ts, "userId=a1&username=anna&role=admin")
	expectEvent(t, admin, presence.EventUsersOnline)

	user := dialWS(t, ts, "userId=u1&username=bob&role=user")
	expectEvent(t, user, presence.EventUsersOnline)
	expectEvent(t, admin, presence.EventUserJoined)

	// A unicast to an offline recipient is silently dropped; the next message
	// proves the relay and connection survived it.
	sendEvent(t, user, presence.EventSendMessage, presence.SendMessagePayload{RecipientID: "ghost", Message: "into the void"})
	sendEvent(t, user, presence.EventSendMessage, presence.SendMessagePayload{RecipientID: "a1", Message: "hello"})

	received := decodePayload[presence.MessageReceivedPayload](t, expectEvent(t, admin, presence.EventMessageReceived))

	if received.SenderID != "u1" {
		t.Errorf("message_received.SenderID = %q; want %q", received.SenderID, "u1")
	}
	if received.SenderName != "bob" {
		t.Errorf("message_received.SenderName = %q; want %q", received.SenderName, "bob")
	}
	if received.Message != "hello" {
		t.Errorf("message_received.Message = %q; want %q", received.Message, "hello")
	}
	if received.Type != presence.DefaultMessageType {
		t.Errorf("message_received.Type = %q; want default %q", received.Type, presence.DefaultMessageType)
	}
	if received.Timestamp.IsZero() {
		t.Error("message_received.Timestamp is zero; want server-side stamp")
	}
}

func TestWorkoutAndActivityRelay(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	admin := dialWS(t, ts, "userId=a1&username=anna&role=admin&displayName=Anna")
	expectEvent(t, admin, presence.EventUsersOnline)

	user := dialWS(t, ts, "userId=u1&username=bob&role=user")
	expectEvent(t, user, presence.EventUsersOnline)
	expectEvent(t, admin, presence.EventUserJoined)

	sendEvent(t, admin, presence.EventWorkoutAssigned, presence.WorkoutAssignedPayload{
		StudentID:    "u1",
		StudentName:  "bob",
		WorkoutID:    "w1",
		WorkoutName:  "Push Day",
		PersonalID:   "a1",
		PersonalName: "Anna",
	})

	assigned := decodePayload[presence.WorkoutAssignedPayload](t, expectEvent(t, user, presence.EventWorkoutAssigned))
	if assigned.WorkoutName != "Push Day" {
		t.Errorf("workout_assigned.WorkoutName = %q; want %q", assigned.WorkoutName, "Push Day")
	}
	if assigned.Timestamp.IsZero() {
		t.Error("workout_assigned.Timestamp is zero; want server-side stamp")
	}

	sendEvent(t, user, presence.EventWorkoutCompleted, presence.WorkoutCompletedPayload{
		StudentID:   "u1",
		StudentName: "bob",
		WorkoutID:   "w1",
		WorkoutName: "Push Day",
		PersonalID:  "a1",
	})

	completed := decodePayload[presence.WorkoutCompletedPayload](t, expectEvent(t, admin, presence.EventWorkoutCompleted))
	if completed.StudentID != "u1" || completed.WorkoutID != "w1" {
		t.Errorf("workout_completed = %+v; want studentId u1, workoutId w1", completed)
	}

	sendEvent(t, user, presence.EventActivityUpdate, presence.ActivityUpdatePayload{
		Activity: "started_workout",
		Details:  json.RawMessage(`{"personalId":"a1","exercise":"squat"}`),
	})

	activity := decodePayload[presence.StudentActivityPayload](t, expectEvent(t, admin, presence.EventStudentActivity))
	if activity.StudentID != "u1" {
		t.Errorf("student_activity.StudentID = %q; want %q", activity.StudentID, "u1")
	}
	if activity.Activity != "started_workout" {
		t.Errorf("student_activity.Activity = %q; want %q", activity.Activity, "started_workout")
	}

	var details map[string]string
	if err := json.Unmarshal(activity.Details, &details); err != nil {
		t.Fatalf("student_activity.Details is not valid JSON: %v", err)
	}
	if details["exercise"] != "squat" {
		t.Errorf("student_activity.Details[exercise] = %q; want %q (opaque forwarding)", details["exercise"], "squat")
	}
}

func TestRoomTracking(t *testing.T) {
	ts, hub := newTestServer(t, nil)

	admin := dialWS(t, ts, "userId=a1&username=anna&role=admin")
	expectEvent(t, admin, presence.EventUsersOnline)

	user := dialWS(t, ts, "userId=u1&username=bob&role=user")
	expectEvent(t, user, presence.EventUsersOnline)
	expectEvent(t, admin, presence.EventUserJoined)

	sendEvent(t, user, presence.EventJoinRoom, presence.RoomPayload{RoomID: "workout-A"})
	sendEvent(t, user, presence.EventJoinRoom, presence.RoomPayload{RoomID: "workout-B"})

	// Inbound events from one connection are processed in order; a delivered
	// marker therefore proves the joins have been handled.
	sendEvent(t, user, presence.EventSendMessage, presence.SendMessagePayload{RecipientID: "a1", Message: "sync"})
	expectEvent(t, admin, presence.EventMessageReceived)

	if room, ok := hub.CurrentRoom("u1"); !ok || room != "workout-B" {
		t.Errorf("CurrentRoom(u1) = (%q, %v); want (%q, true)", room, ok, "workout-B")
	}

	// Leaving a room that is not the tracked one keeps the slot.
	sendEvent(t, user, presence.EventLeaveRoom, presence.RoomPayload{RoomID: "workout-A"})
	sendEvent(t, user, presence.EventSendMessage, presence.SendMessagePayload{RecipientID: "a1", Message: "sync"})
	expectEvent(t, admin, presence.EventMessageReceived)

	if room, ok := hub.CurrentRoom("u1"); !ok || room != "workout-B" {
		t.Errorf("CurrentRoom(u1) after mismatched leave = (%q, %v); want (%q, true)", room, ok, "workout-B")
	}

	sendEvent(t, user, presence.EventLeaveRoom, presence.RoomPayload{RoomID: "workout-B"})
	sendEvent(t, user, presence.EventSendMessage, presence.SendMessagePayload{RecipientID: "a1", Message: "sync"})
	expectEvent(t, admin, presence.EventMessageReceived)

	if room, ok := hub.CurrentRoom("u1"); ok {
		t.Errorf("CurrentRoom(u1) after matching leave = %q; want absent", room)
	}
}

func TestTokenHandshake(t *testing.T) {
	cfg := &configs.AppConfig{
		Environment:     "development",
		Port:            8080,
		HandshakeSecret: "handshake-secret",
	}
	ts, _ := newTestServer(t, cfg)

	signed, err := token.Generate(&token.Identity{
		UserID:   "u9",
		Username: "dana",
		Role:     "admin",
	}, cfg.HandshakeSecret, time.Hour)
	if err != nil {
		t.Fatalf("token.Generate failed: %v", err)
	}

	conn := dialWS(t, ts, "token="+signed)

	snapshot := decodePayload[[]presence.OnlineUser](t, expectEvent(t, conn, presence.EventUsersOnline))
	if len(snapshot) != 1 || snapshot[0].UserID != "u9" {
		t.Fatalf("snapshot = %+v; want single entry for u9", snapshot)
	}
	if snapshot[0].Role != presence.RoleAdmin {
		t.Errorf("snapshot role = %q; want %q", snapshot[0].Role, presence.RoleAdmin)
	}
	if snapshot[0].DisplayName != "dana" {
		t.Errorf("snapshot displayName = %q; want username fallback %q", snapshot[0].DisplayName, "dana")
	}

	// Plain identity parameters are ignored in token mode.
	badConn, resp, dialErr := websocket.DefaultDialer.Dial(wsURL(ts, "userId=u1&username=bob"), nil)
	if dialErr == nil {
		badConn.Close()
		t.Fatal("handshake without token succeeded in token mode")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("tokenless handshake response = %v; want 401", resp)
	}
	resp.Body.Close()
}
