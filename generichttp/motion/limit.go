package motion

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	"github.jpl.nasa.gov/bdube/mcc2/generichttp"
	"github.jpl.nasa.gov/bdube/mcc2/util"
)

// LimitQueryer is a type that knows the soft limits of its axes.  The limits
// are enforced by the axis itself; a move outside them is answered with 400.
type LimitQueryer interface {
	GetLimits(context.Context, string) (util.Limiter, error)
}

// HTTPLimits places a /axis/{axis}/limits route on the table
func HTTPLimits(iface LimitQueryer, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/limits"}] = Limits(iface)
}

// Limits returns an HTTP handler func that returns the limits for an axis,
// or null if the axis has none
func Limits(l LimitQueryer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		lim, err := l.GetLimits(r.Context(), axis)
		if err != nil {
			reply(w, err)
			return
		}
		if !lim.Enabled() {
			generichttp.RespondJSON(w, nil)
			return
		}
		generichttp.RespondJSON(w, lim)
	}
}
