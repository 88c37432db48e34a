package motion

import (
	"context"
	"net/http"

	"github.jpl.nasa.gov/bdube/mcc2/generichttp"
)

// Speeder is a type whose axes have a run frequency, in Hz
type Speeder interface {
	SetVelocity(context.Context, string, int64) error
	GetVelocity(context.Context, string) (int64, error)
}

// HTTPSpeed adds the velocity routes to the route table
func HTTPSpeed(iface Speeder, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/velocity"}] = axisSteps(iface.SetVelocity)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/velocity"}] = axisValue(iface.GetVelocity)
}
