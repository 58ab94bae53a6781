/*
Package presence contains the core logic for tracking connected principals, room
membership, and relaying named events between live WebSocket connections.

This file defines the Principal struct, the identity and role information bound to
one live connection, and the OnlineUser snapshot entry exposed to clients and to
the monitoring API.
*/
package presence

import "time"

const (
	// RoleAdmin marks personal trainers / administrators. Admins join the admins
	// room for the lifetime of their connection and receive presence deltas.
	RoleAdmin = "admin"

	// RoleUser marks regular gym members (students). This is the default role.
	RoleUser = "user"

	// AdminsRoom is the permanent broadcast group joined by every admin connection.
	AdminsRoom = "admins"
)

// Principal represents the identity information associated with one live connection.
// The server does not verify these fields against any credential store; trust is
// delegated to the handshake (plain or token-signed, see the handler package).
type Principal struct {
	// UserID is the stable identifier supplied by the client at connect time.
	UserID string `json:"userId"`

	// Username is the account name of the principal.
	Username string `json:"username"`

	// DisplayName is the name shown to other users. Defaults to Username.
	DisplayName string `json:"displayName"`

	// Role is either RoleAdmin or RoleUser.
	Role string `json:"role"`
}

// NormalizeRole maps arbitrary client input onto the two supported roles.
// Anything other than "admin" is treated as a regular user.
func NormalizeRole(role string) string {
	if role == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// OnlineUser is one entry of the users_online snapshot: the principal's identity
// plus the opaque connection handle and connect time.
type OnlineUser struct {
	UserID      string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	ConnID      string    `json:"connId"`
	ConnectedAt time.Time `json:"connectedAt"`
}
