package motion

import (
	"context"
	"net/http"

	"github.jpl.nasa.gov/bdube/mcc2/generichttp"
)

// Recoverer is a type whose axes latch faults and must be told to re-check
// the hardware before they accept motion again
type Recoverer interface {
	// Reset clears a latched fault if the controller no longer reports it
	Reset(context.Context, string) error

	// Reconnect clears a lost connection if the controller answers again
	Reconnect(context.Context, string) error
}

// HTTPRecover adds routes for the recoverer to the route table
func HTTPRecover(iface Recoverer, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/reset"}] = axisCall(iface.Reset)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/reconnect"}] = axisCall(iface.Reconnect)
}
