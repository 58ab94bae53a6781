/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting,
validating the handshake identity (plain query parameters or a signed token), upgrading
the HTTP connection to WebSocket, and initiating the client lifecycle.
*/
package handler

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"gympulse/internal/app/presence"
	"gympulse/internal/configs"
	"gympulse/internal/pkg/auth/token"
	"gympulse/internal/pkg/errs"
	"gympulse/internal/pkg/limiter"
	"gympulse/internal/pkg/logx"
	"gympulse/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		principal, customErr := extractIdentity(r, deps.Config)
		if customErr != nil {
			logx.Warn("WebSocket handshake rejected.", "code", customErr.Code)
			resp.RespondError(w, r, customErr)
			return
		}

		logx.Info("Attempting to upgrade connection",
			"user_id", principal.UserID,
			"role", principal.Role,
		)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := presence.NewClient(deps.Hub, conn, principal)

		go client.WritePump()

		deps.Hub.Register(client)

		logx.Info("WebSocket connection established and client registered",
			"user_id", principal.UserID,
			"conn_id", client.ConnID(),
		)

		client.ReadPump()
	}
}

// extractIdentity builds the connecting Principal from the handshake request.
//
// Default mode trusts the caller: userId and username query parameters are
// required, role defaults to "user", displayName defaults to username. When a
// handshake secret is configured, identity comes exclusively from a signed
// token and the plain parameters are ignored.
func extractIdentity(r *http.Request, cfg *configs.AppConfig) (presence.Principal, *errs.CustomError) {
	query := r.URL.Query()

	if cfg.HandshakeSecret != "" {
		tokenString := query.Get("token")
		if tokenString == "" {
			return presence.Principal{}, errs.NewError(errs.ErrHandshakeTokenInvalid)
		}

		identity, err := token.Parse(tokenString, cfg.HandshakeSecret)
		if err != nil {
			logx.Warn("Invalid handshake token presented.", "error", err)
			return presence.Principal{}, errs.NewError(errs.ErrHandshakeTokenInvalid)
		}

		if identity.UserID == "" || identity.Username == "" {
			return presence.Principal{}, errs.NewError(errs.ErrHandshakeUnauthorized)
		}

		displayName := identity.DisplayName
		if displayName == "" {
			displayName = identity.Username
		}

		return presence.Principal{
			UserID:      identity.UserID,
			Username:    identity.Username,
			DisplayName: displayName,
			Role:        presence.NormalizeRole(identity.Role),
		}, nil
	}

	userID := query.Get("userId")
	username := query.Get("username")

	if userID == "" || username == "" {
		return presence.Principal{}, errs.NewError(errs.ErrHandshakeUnauthorized)
	}

	displayName := query.Get("displayName")
	if displayName == "" {
		displayName = username
	}

	return presence.Principal{
		UserID:      userID,
		Username:    username,
		DisplayName: displayName,
		Role:        presence.NormalizeRole(query.Get("role")),
	}, nil
}
