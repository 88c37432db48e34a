package motion

import (
	"context"
	"net/http"

	"github.jpl.nasa.gov/bdube/mcc2/generichttp"
)

// Stopper is a type that can halt motion on an axis
type Stopper interface {
	// Stop decelerates the axis to a stop.  It is honored in every state.
	Stop(context.Context, string) error
}

// HTTPStop adds POST /axis/{axis}/stop to the route table
func HTTPStop(iface Stopper, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/stop"}] = axisCall(iface.Stop)
}
