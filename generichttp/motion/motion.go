// Package motion provides an HTTP interface to motion controllers
package motion

/*
This file binds the supported interfaces for a motion controller, which may
implement any number of them beyond Mover.  Every route is keyed by the axis
id in the URL, /axis/{axis}/...
*/
import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	"github.jpl.nasa.gov/bdube/mcc2/generichttp"
)

// Controller is used for the HTTP interface, which will check if the concrete
// type satisfies the other interfaces in this package and inject their routes
// automatically
type Controller interface {
	// Mover - all Controllers must be Movers
	Mover
}

// Identifier is a type that can report the firmware behind an axis
type Identifier interface {
	Firmware(context.Context, string) (string, error)
}

// HTTPMotionController wraps a motion controller with HTTP
type HTTPMotionController struct {
	Controller

	RouteTable generichttp.RouteTable
}

// NewHTTPMotionController returns a new HTTP wrapper with the route table pre-configured
func NewHTTPMotionController(c Controller) HTTPMotionController {
	w := HTTPMotionController{Controller: c}
	rt := generichttp.RouteTable{}
	HTTPMove(c, rt)
	// the interface{}().(foo); ok syntax tests if c implements foo
	if stopper, ok := interface{}(c).(Stopper); ok {
		HTTPStop(stopper, rt)
	}
	if speeder, ok := interface{}(c).(Speeder); ok {
		HTTPSpeed(speeder, rt)
	}
	if inpos, ok := interface{}(c).(InPositionQueryer); ok {
		HTTPInPosition(inpos, rt)
	}
	if stater, ok := interface{}(c).(StateQueryer); ok {
		HTTPState(stater, rt)
	}
	if recoverer, ok := interface{}(c).(Recoverer); ok {
		HTTPRecover(recoverer, rt)
	}
	if limiter, ok := interface{}(c).(LimitQueryer); ok {
		HTTPLimits(limiter, rt)
	}
	if ident, ok := interface{}(c).(Identifier); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/firmware"}] = func(w http.ResponseWriter, r *http.Request) {
			axis := chi.URLParam(r, "axis")
			generichttp.GetString(func() (string, error) {
				return ident.Firmware(r.Context(), axis)
			}, StatusFor)(w, r)
		}
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the HTTPer interface
func (h HTTPMotionController) RT() generichttp.RouteTable {
	return h.RouteTable
}
