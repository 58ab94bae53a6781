/*
Package handler provides the HTTP trigger endpoint for server-side notifications.

The dashboard backend can deliver a workout assignment over HTTP instead of a
WebSocket event. Delivery keeps relay semantics: fire-and-forget, at-most-once,
and a 200 response regardless of whether the student is currently online.
*/
package handler

import (
	"net/http"

	"gympulse/internal/app/presence"
	"gympulse/internal/pkg/errs"
	"gympulse/internal/pkg/req"
	"gympulse/internal/pkg/resp"
)

// HandleNotifyWorkout processes POST /api/notify/workout requests.
func HandleNotifyWorkout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var assignment presence.WorkoutAssignedPayload

		if customErr := req.BindJSON(r, &assignment); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if assignment.StudentID == "" || assignment.WorkoutID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		deps.Hub.NotifyWorkoutAssigned(assignment)

		resp.RespondSuccess(w, r, nil)
	}
}
