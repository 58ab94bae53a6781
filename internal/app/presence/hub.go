/*
Package presence contains the core logic for tracking connected principals, room
membership, and relaying named events between live WebSocket connections.

This file defines the Hub, the central coordinator. It owns the Connection
Registry, the RoomTable, and the transport-level broadcast groups, and runs a
single event loop through which every connect, disconnect, and inbound event is
processed. Handlers run to completion inside that loop; the only asynchronous
boundary is the per-connection WebSocket I/O.
*/
package presence

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gympulse/internal/pkg/logx"
	"gympulse/internal/pkg/randx"
)

const (
	// capacity of the hub's inbound event queue.
	inboundChannelBuffer = 1024

	// DefaultMessageType is applied when a send_message payload omits the type field.
	DefaultMessageType = "text"
)

// inboundEvent carries one parsed client frame into the hub loop.
type inboundEvent struct {
	client  *Client
	event   string
	payload json.RawMessage
}

// Hub coordinates all live connections. The groups and clients maps are touched
// only by the Run goroutine; the Registry and RoomTable carry their own locks so
// the monitoring endpoints can read them concurrently.
type Hub struct {
	// registry maps userID to the live connection and identity (last-writer-wins).
	registry *Registry

	// roomTable is the single-slot "current room" tracker.
	roomTable *RoomTable

	// groups holds the transport-level broadcast groups: roomID -> member set.
	// A connection can sit in several groups at once (the permanent admins group
	// plus any number of dynamic joins); only the roomTable slot is single-valued.
	groups map[string]map[*Client]struct{}

	// clients is the set of all live connections.
	clients map[*Client]struct{}

	// lifecycle and event channels feeding the Run loop.
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent

	// stop signals the Run loop to terminate.
	stop chan struct{}

	// stopOnce guards stop against double close.
	stopOnce sync.Once

	// wg waits for the Run goroutine during shutdown.
	wg sync.WaitGroup

	// structured logger with Hub context.
	logger zerolog.Logger
}

// NewHub constructs a Hub and starts its event loop.
func NewHub() *Hub {
	hubLogger := logx.Logger().With().Str("component", "Hub").Logger()

	h := &Hub{
		registry:   NewRegistry(),
		roomTable:  NewRoomTable(),
		groups:     make(map[string]map[*Client]struct{}),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEvent, inboundChannelBuffer),
		stop:       make(chan struct{}),
		logger:     hubLogger,
	}

	h.wg.Add(1)
	go h.run()

	return h
}

// Register queues a freshly upgraded connection for registration.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.stop:
	}
}

// Unregister queues a connection for cleanup. Safe to call after shutdown.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stop:
	}
}

// Dispatch hands one inbound event to the hub loop. A full queue drops the event;
// the relay promises at-most-once delivery, never queueing beyond the buffer.
func (h *Hub) Dispatch(c *Client, event string, payload json.RawMessage) {
	select {
	case h.inbound <- inboundEvent{client: c, event: event, payload: payload}:
	case <-h.stop:
	default:
		h.logger.Warn().Str("event", event).Msg("Hub inbound queue full, dropping event")
	}
}

// Shutdown stops the event loop and closes every connection's outbound queue.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("Shutting down Hub event loop...")

	h.stopOnce.Do(func() {
		close(h.stop)
	})
	h.wg.Wait()

	h.logger.Info().Msg("Hub shutdown complete.")
}

// run is the hub's single-threaded event loop.
func (h *Hub) run() {
	defer func() {
		for c := range h.clients {
			c.closeSend()
		}

		h.logger.Info().Msg("Hub event loop stopped.")
		h.wg.Done()
	}()

	h.logger.Info().Msg("Hub event loop started.")

	for {
		select {
		case c := <-h.register:
			h.onConnect(c)

		case c := <-h.unregister:
			h.onDisconnect(c)

		case ev := <-h.inbound:
			h.dispatchEvent(ev.client, ev.event, ev.payload)

		case <-h.stop:
			return
		}
	}
}

// onConnect registers the connection, announces a user login to the admins room,
// grants admins their permanent admins-room membership, and sends the connecting
// principal the current online snapshot.
func (h *Hub) onConnect(c *Client) {
	p := c.Principal()

	h.registry.Register(p, c)
	h.clients[c] = struct{}{}

	h.logger.Info().
		Str("user_id", p.UserID).
		Str("display_name", p.DisplayName).
		Str("role", p.Role).
		Int("online", h.registry.Size()).
		Msg("Principal connected.")

	if p.Role == RoleUser {
		h.broadcastToRoom(AdminsRoom, EventUserJoined, PresencePayload{
			UserID:      p.UserID,
			Username:    p.Username,
			DisplayName: p.DisplayName,
			Role:        p.Role,
		})
	}

	if p.Role == RoleAdmin {
		h.joinGroup(c, AdminsRoom)
	}

	if err := c.SendEvent(EventUsersOnline, h.registry.ListAll()); err != nil {
		h.logger.Warn().
			Str("user_id", p.UserID).
			Err(err).
			Msg("Failed to deliver initial users_online snapshot.")
	}
}

// onDisconnect removes the connection from the hub. Registry and room-tracker
// state is only cleared when this connection still owns the registry entry; a
// connection that was silently replaced must not evict its replacement.
func (h *Hub) onDisconnect(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)

	for roomID, members := range h.groups {
		delete(members, c)
		if len(members) == 0 {
			delete(h.groups, roomID)
		}
	}

	p := c.Principal()
	released := h.registry.Release(p.UserID, c)

	c.closeSend()

	if !released {
		h.logger.Debug().
			Str("user_id", p.UserID).
			Str("conn_id", c.ConnID()).
			Msg("Disconnect of replaced connection; registry entry kept.")
		return
	}

	h.roomTable.Forget(p.UserID)

	h.logger.Info().
		Str("user_id", p.UserID).
		Str("role", p.Role).
		Int("online", h.registry.Size()).
		Msg("Principal disconnected.")

	if p.Role == RoleUser {
		h.broadcastToRoom(AdminsRoom, EventUserLeft, PresencePayload{
			UserID:      p.UserID,
			Username:    p.Username,
			DisplayName: p.DisplayName,
			Role:        p.Role,
		})
	}

	h.broadcastAll(EventUsersOnline, h.registry.ListAll())
}

// dispatchEvent routes one inbound event to its handler. A panic in a handler is
// isolated here so a malformed payload cannot take down the process.
func (h *Hub) dispatchEvent(c *Client, event string, payload json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error().
				Str("event", event).
				Str("user_id", c.Principal().UserID).
				Interface("panic", rec).
				Msg("Recovered from panic in event handler.")
		}
	}()

	switch event {
	case EventJoinRoom:
		h.handleJoinRoom(c, payload)

	case EventLeaveRoom:
		h.handleLeaveRoom(c, payload)

	case EventWorkoutAssigned:
		h.handleWorkoutAssigned(c, payload)

	case EventWorkoutCompleted:
		h.handleWorkoutCompleted(c, payload)

	case EventSendMessage:
		h.handleSendMessage(c, payload)

	case EventAdminBroadcast:
		h.handleAdminBroadcast(c, payload)

	case EventActivityUpdate:
		h.handleActivityUpdate(c, payload)

	default:
		h.logger.Warn().
			Str("event", event).
			Str("user_id", c.Principal().UserID).
			Msg("Client sent unsupported event.")
	}
}

// handleJoinRoom joins the transport-level group and overwrites the tracked room
// slot. The previous dynamic room is deliberately not left at the transport level.
func (h *Hub) handleJoinRoom(c *Client, payload json.RawMessage) {
	var room RoomPayload
	if err := json.Unmarshal(payload, &room); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid join_room payload")
		return
	}

	if !randx.IsValidRoomID(room.RoomID) {
		c.logger.Warn().Str("room_id", room.RoomID).Msg("Rejected join_room with invalid room id")
		return
	}

	h.joinGroup(c, room.RoomID)
	h.roomTable.Join(c.Principal().UserID, room.RoomID)

	c.logger.Info().Str("room_id", room.RoomID).Msg("Client joined room.")
}

// handleLeaveRoom leaves the transport-level group and clears the tracked slot
// only if it matches the given room.
func (h *Hub) handleLeaveRoom(c *Client, payload json.RawMessage) {
	var room RoomPayload
	if err := json.Unmarshal(payload, &room); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid leave_room payload")
		return
	}

	h.leaveGroup(c, room.RoomID)
	h.roomTable.Leave(c.Principal().UserID, room.RoomID)

	c.logger.Info().Str("room_id", room.RoomID).Msg("Client left room.")
}

// handleWorkoutAssigned relays a workout assignment to the targeted student.
func (h *Hub) handleWorkoutAssigned(c *Client, payload json.RawMessage) {
	var assignment WorkoutAssignedPayload
	if err := json.Unmarshal(payload, &assignment); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid workout_assigned payload")
		return
	}

	assignment.Timestamp = time.Now()
	h.unicast(assignment.StudentID, EventWorkoutAssigned, assignment)
}

// handleWorkoutCompleted relays a workout completion to the student's personal trainer.
func (h *Hub) handleWorkoutCompleted(c *Client, payload json.RawMessage) {
	var completion WorkoutCompletedPayload
	if err := json.Unmarshal(payload, &completion); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid workout_completed payload")
		return
	}

	completion.Timestamp = time.Now()
	h.unicast(completion.PersonalID, EventWorkoutCompleted, completion)
}

// handleSendMessage relays a direct message. Sender identity always comes from
// the registered principal, not from anything the client put in the payload.
func (h *Hub) handleSendMessage(c *Client, payload json.RawMessage) {
	var msg SendMessagePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid send_message payload")
		return
	}

	if msg.Type == "" {
		msg.Type = DefaultMessageType
	}

	p := c.Principal()
	h.unicast(msg.RecipientID, EventMessageReceived, MessageReceivedPayload{
		SenderID:   p.UserID,
		SenderName: p.DisplayName,
		Message:    msg.Message,
		Type:       msg.Type,
		Timestamp:  time.Now(),
	})
}

// handleAdminBroadcast relays an announcement to every other connection, but only
// when the registered role of the sender is admin. Anything else is a silent
// permission no-op.
func (h *Hub) handleAdminBroadcast(c *Client, payload json.RawMessage) {
	p := c.Principal()

	if p.Role != RoleAdmin {
		c.logger.Debug().Msg("Ignoring admin_broadcast from non-admin principal.")
		return
	}

	var broadcast AdminBroadcastPayload
	if err := json.Unmarshal(payload, &broadcast); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid admin_broadcast payload")
		return
	}

	h.broadcastExcept(c, EventAdminAnnouncement, AnnouncementPayload{
		Message:   broadcast.Message,
		AdminName: p.DisplayName,
		Timestamp: time.Now(),
	})

	c.logger.Info().Str("message", broadcast.Message).Msg("Admin announcement relayed.")
}

// handleActivityUpdate relays a student's activity report to the personal trainer
// named in the details blob. Reports without a routable personalId are dropped.
func (h *Hub) handleActivityUpdate(c *Client, payload json.RawMessage) {
	p := c.Principal()

	if p.Role != RoleUser {
		return
	}

	var update ActivityUpdatePayload
	if err := json.Unmarshal(payload, &update); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid activity_update payload")
		return
	}

	var details activityDetails
	if len(update.Details) > 0 {
		if err := json.Unmarshal(update.Details, &details); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid activity_update details")
			return
		}
	}

	if details.PersonalID == "" {
		return
	}

	h.unicast(details.PersonalID, EventStudentActivity, StudentActivityPayload{
		StudentID:   p.UserID,
		StudentName: p.DisplayName,
		Activity:    update.Activity,
		Details:     update.Details,
		Timestamp:   time.Now(),
	})
}

// unicast delivers an event to the single connection currently registered for
// userID. A miss (target offline) is logged and silently dropped; the message is
// neither queued nor retried.
func (h *Hub) unicast(userID string, event string, payload any) {
	if userID == "" {
		return
	}

	target, _, ok := h.registry.Lookup(userID)
	if !ok {
		logx.Debug("Unicast target not connected, dropping event.", "user_id", userID, "event", event)
		return
	}

	if err := target.SendEvent(event, payload); err != nil {
		logx.Debug("Unicast delivery failed.", "user_id", userID, "event", event)
	}
}

// broadcastToRoom delivers an event to every member of the transport-level group,
// including the sender if the sender is a member.
func (h *Hub) broadcastToRoom(roomID string, event string, payload any) {
	members := h.groups[roomID]
	if len(members) == 0 {
		return
	}

	messageBytes, err := EncodeEvent(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Error marshaling room broadcast.")
		return
	}

	for member := range members {
		member.enqueue(messageBytes)
	}
}

// broadcastExcept delivers an event to every live connection other than sender.
func (h *Hub) broadcastExcept(sender *Client, event string, payload any) {
	messageBytes, err := EncodeEvent(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Error marshaling broadcast.")
		return
	}

	for c := range h.clients {
		if c != sender {
			c.enqueue(messageBytes)
		}
	}
}

// broadcastAll delivers an event to every live connection.
func (h *Hub) broadcastAll(event string, payload any) {
	h.broadcastExcept(nil, event, payload)
}

// joinGroup adds the connection to the transport-level group for roomID.
func (h *Hub) joinGroup(c *Client, roomID string) {
	members, ok := h.groups[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.groups[roomID] = members
	}
	members[c] = struct{}{}
}

// leaveGroup removes the connection from the transport-level group for roomID.
func (h *Hub) leaveGroup(c *Client, roomID string) {
	members, ok := h.groups[roomID]
	if !ok {
		return
	}

	delete(members, c)
	if len(members) == 0 {
		delete(h.groups, roomID)
	}
}

// OnlineCount returns the number of currently connected principals.
// Safe to call from any goroutine.
func (h *Hub) OnlineCount() int {
	return h.registry.Size()
}

// Snapshot returns the full users_online snapshot. Safe to call from any goroutine.
func (h *Hub) Snapshot() []OnlineUser {
	return h.registry.ListAll()
}

// RoleCounts returns the online counts partitioned by role.
// Safe to call from any goroutine.
func (h *Hub) RoleCounts() (admins int, students int) {
	return h.registry.CountByRole()
}

// CurrentRoom returns the tracked room for userID, if any.
// Safe to call from any goroutine.
func (h *Hub) CurrentRoom(userID string) (string, bool) {
	return h.roomTable.Room(userID)
}

// NotifyWorkoutAssigned lets the HTTP boundary trigger a workout_assigned unicast
// on behalf of the dashboard backend. Fire-and-forget like every other relay path;
// it only touches the lock-guarded registry, so it is safe from request goroutines.
func (h *Hub) NotifyWorkoutAssigned(assignment WorkoutAssignedPayload) {
	assignment.Timestamp = time.Now()
	h.unicast(assignment.StudentID, EventWorkoutAssigned, assignment)
}
