package handler

import (
	"time"

	"gympulse/internal/app/presence"
	"gympulse/internal/configs"
)

// AppDeps bundles the shared dependencies handed to every handler constructor.
type AppDeps struct {
	Hub       *presence.Hub
	Config    *configs.AppConfig
	StartedAt time.Time
}
