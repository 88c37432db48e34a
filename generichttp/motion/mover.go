package motion

import (
	"context"
	"net/http"
	"strconv"

	"github.jpl.nasa.gov/bdube/mcc2/generichttp"
	"github.jpl.nasa.gov/bdube/mcc2/phytron"
)

// Mover is the core of a motion controller: positions and moves, in steps,
// of axes named by string ids
type Mover interface {
	// GetPos gets the last known position of an axis
	GetPos(context.Context, string) (phytron.Position, error)

	// MoveAbs starts a move to an absolute position
	MoveAbs(context.Context, string, int64) error

	// MoveRel starts a move by a signed number of steps
	MoveRel(context.Context, string, int64) error

	// Home starts a reference run
	Home(context.Context, string) error
}

// HTTPMove adds the position and homing routes to the route table.
// POST /axis/{axis}/pos moves relative when the query has relative=true.
func HTTPMove(iface Mover, table generichttp.RouteTable) {
	abs, rel := axisSteps(iface.MoveAbs), axisSteps(iface.MoveRel)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/home"}] = axisCall(iface.Home)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/pos"}] = axisValue(func(ctx context.Context, axis string) (int64, error) {
		pos, err := iface.GetPos(ctx, axis)
		return pos.Steps, err
	})
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/pos"}] = func(w http.ResponseWriter, r *http.Request) {
		relative := false
		if q := r.URL.Query().Get("relative"); q != "" {
			var err error
			relative, err = strconv.ParseBool(q)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if relative {
			rel(w, r)
			return
		}
		abs(w, r)
	}
}
