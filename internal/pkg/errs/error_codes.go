/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1005
)

// 2xxx: Presence and Relay Business Logic Errors
const (
	// ErrRoomIDInvalid indicates that a room identifier failed validation.
	ErrRoomIDInvalid = 2101

	// ErrEventUnsupported indicates that a named event is not part of the relay catalog.
	ErrEventUnsupported = 2201
)

// 3xxx: Identity and Session Errors
const (
	// ErrHandshakeUnauthorized indicates that the WebSocket handshake is missing
	// required identity fields (userId, username).
	ErrHandshakeUnauthorized = 3001

	// ErrHandshakeTokenInvalid indicates that the signed handshake token is missing,
	// malformed, expired, or carries an invalid signature.
	ErrHandshakeTokenInvalid = 3002
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
