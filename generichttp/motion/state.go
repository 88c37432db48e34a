package motion

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	"github.jpl.nasa.gov/bdube/mcc2/generichttp"
	"github.jpl.nasa.gov/bdube/mcc2/phytron"
)

// StateQueryer is a type that tracks the motion state of its axes
type StateQueryer interface {
	// GetState returns the cached state without talking to the hardware
	GetState(context.Context, string) (phytron.Snapshot, error)

	// Poll refreshes the state from the hardware
	Poll(context.Context, string) (phytron.Snapshot, error)
}

// HTTPState adds routes for the state queryer to the route table
func HTTPState(iface StateQueryer, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/state"}] = snapshot(iface.GetState)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/poll"}] = snapshot(iface.Poll)
}

// snapshot returns an HTTP handler func which responds with the snapshot
// from fn as JSON
func snapshot(fn func(context.Context, string) (phytron.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		snap, err := fn(r.Context(), axis)
		if err != nil {
			reply(w, err)
			return
		}
		generichttp.RespondJSON(w, snap)
	}
}
