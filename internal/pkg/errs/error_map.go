/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Presence and Relay Business Logic Errors
	ErrRoomIDInvalid:    {Code: ErrRoomIDInvalid, Message: "Invalid room identifier.", Status: http.StatusBadRequest},
	ErrEventUnsupported: {Code: ErrEventUnsupported, Message: "Unsupported event name.", Status: http.StatusBadRequest},

	// 3xxx: Identity and Session Errors
	ErrHandshakeUnauthorized: {Code: ErrHandshakeUnauthorized, Message: "Authentication error.", Status: http.StatusUnauthorized},
	ErrHandshakeTokenInvalid: {Code: ErrHandshakeTokenInvalid, Message: "Invalid or expired handshake token.", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
