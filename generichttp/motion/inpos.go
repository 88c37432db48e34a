package motion

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	"github.jpl.nasa.gov/bdube/mcc2/generichttp"
)

// InPositionQueryer is a type which can tell if an axis has settled
type InPositionQueryer interface {
	// GetInPosition is true when the axis is idle at standstill with a fresh position
	GetInPosition(context.Context, string) (bool, error)
}

// HTTPInPosition adds GET /axis/{axis}/inposition to the route table
func HTTPInPosition(iface InPositionQueryer, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/inposition"}] = func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		generichttp.GetBool(func() (bool, error) {
			return iface.GetInPosition(r.Context(), axis)
		}, StatusFor)(w, r)
	}
}
