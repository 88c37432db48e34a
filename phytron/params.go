package phytron

import "github.jpl.nasa.gov/bdube/mcc2/util"

// Parameter numbers with a meaning this package knows about
const (
	ParamMovementType   = 1
	ParamUnit           = 2
	ParamHomingVelocity = 8
	ParamVelocity       = 14
	ParamAcceleration   = 15
	ParamPosition       = 20
	ParamBacklash       = 25
	ParamInitiatorType  = 27
	ParamHoldCurrent    = 40
	ParamRunCurrent     = 41
	ParamStepResolution = 45
)

// ParameterInfo describes the accepted values of a parameter.  A zero
// Limits accepts anything the wire can carry.
type ParameterInfo struct {
	Name    string
	Unit    string
	Limits  util.Limiter
	Allowed []int64
}

// Parameters is the table of known parameters.  Currents are in tenths of an
// ampere.
var Parameters = map[int]ParameterInfo{
	ParamMovementType:   {Name: "movement type", Limits: util.Limiter{Min: 0, Max: 1}},
	ParamUnit:           {Name: "unit", Limits: util.Limiter{Min: 1, Max: 4}},
	ParamHomingVelocity: {Name: "homing velocity", Unit: "Hz", Limits: util.Limiter{Min: 0, Max: 40000}},
	ParamVelocity:       {Name: "velocity", Unit: "Hz", Limits: util.Limiter{Min: 0, Max: 40000}},
	ParamAcceleration:   {Name: "acceleration", Unit: "Hz/s", Limits: util.Limiter{Min: 4000, Max: 500000}},
	ParamPosition:       {Name: "position", Unit: "steps"},
	ParamBacklash:       {Name: "backlash compensation", Unit: "steps"},
	ParamInitiatorType:  {Name: "initiator type", Limits: util.Limiter{Min: 0, Max: 1}},
	ParamHoldCurrent:    {Name: "hold current", Unit: "0.1 A", Limits: util.Limiter{Min: 0, Max: 25}},
	ParamRunCurrent:     {Name: "run current", Unit: "0.1 A", Limits: util.Limiter{Min: 0, Max: 25}},
	ParamStepResolution: {Name: "step resolution", Allowed: []int64{1, 2, 4, 8, 10, 16, 128, 256}},
}

// CheckParameter returns a *RangeError if v is not accepted by parameter p.
// Parameters missing from the table are not checked.
func CheckParameter(p int, v int64) error {
	info, ok := Parameters[p]
	if !ok {
		return nil
	}
	if info.Allowed != nil {
		for _, a := range info.Allowed {
			if a == v {
				return nil
			}
		}
		return &RangeError{What: info.Name, Value: v, Allowed: info.Allowed}
	}
	if !info.Limits.Check(v) {
		return &RangeError{What: info.Name, Value: v, Limits: info.Limits}
	}
	return nil
}

// signed reports if a parameter is a position-like value that changes sign on
// an inverted axis
func signed(p int) bool {
	return p == ParamPosition || p == ParamBacklash
}
