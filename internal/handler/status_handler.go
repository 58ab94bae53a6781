/*
Package handler provides HTTP handler functions for the read-only monitoring surface.

The three endpoints expose fixed top-level JSON shapes consumed by external
monitoring, so they respond with raw payloads instead of the standard envelope.
None of them mutate state and none require authentication.
*/
package handler

import (
	"net/http"
	"runtime"
	"time"

	"gympulse/internal/app/presence"
	"gympulse/internal/pkg/resp"
)

// ServerVersion is reported by the liveness endpoint.
const ServerVersion = "1.0.0"

// rootResponse is the liveness marker returned by GET /.
type rootResponse struct {
	Message     string    `json:"message"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	OnlineUsers int       `json:"onlineUsers"`
	Version     string    `json:"version"`
}

// memoryUsage summarizes process memory for the health probe.
type memoryUsage struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"totalAlloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"numGC"`
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status      string      `json:"status"`
	Uptime      float64     `json:"uptime"`
	Memory      memoryUsage `json:"memory"`
	OnlineUsers int         `json:"onlineUsers"`
}

// statsResponse is returned by GET /stats.
type statsResponse struct {
	OnlineUsers      []presence.OnlineUser `json:"onlineUsers"`
	TotalConnections int                   `json:"totalConnections"`
	Admins           int                   `json:"admins"`
	Students         int                   `json:"students"`
}

// HandleRoot returns the liveness marker handler.
func HandleRoot(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondJSON(w, r, http.StatusOK, rootResponse{
			Message:     "GymPulse Realtime Server",
			Status:      "running",
			Timestamp:   time.Now(),
			OnlineUsers: deps.Hub.OnlineCount(),
			Version:     ServerVersion,
		})
	}
}

// HandleHealth returns the health probe handler: process uptime, memory usage,
// and the current registry size.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		resp.RespondJSON(w, r, http.StatusOK, healthResponse{
			Status: "healthy",
			Uptime: time.Since(deps.StartedAt).Seconds(),
			Memory: memoryUsage{
				Alloc:      memStats.Alloc,
				TotalAlloc: memStats.TotalAlloc,
				Sys:        memStats.Sys,
				NumGC:      memStats.NumGC,
			},
			OnlineUsers: deps.Hub.OnlineCount(),
		})
	}
}

// HandleStats returns the monitoring handler: the full online snapshot plus
// counts partitioned by role.
func HandleStats(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := deps.Hub.Snapshot()
		admins, students := deps.Hub.RoleCounts()

		resp.RespondJSON(w, r, http.StatusOK, statsResponse{
			OnlineUsers:      snapshot,
			TotalConnections: len(snapshot),
			Admins:           admins,
			Students:         students,
		})
	}
}
