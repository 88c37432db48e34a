package motion

import (
	"context"
	"errors"
	"net/http"

	"github.jpl.nasa.gov/bdube/mcc2/comm"
	"github.jpl.nasa.gov/bdube/mcc2/phytron"
)

// StatusFor maps the errors of a phytron axis to HTTP status codes.
// Caller mistakes are 400, controller rejections 409, and a line that can
// not be trusted 503.
func StatusFor(err error) int {
	var (
		re *phytron.RangeError
		ee *phytron.EncodingError
		se *phytron.StateError
		pe *phytron.ProtocolError
		fe *phytron.FramingError
	)
	switch {
	case errors.Is(err, phytron.ErrAxisNotFound):
		return http.StatusNotFound
	case errors.As(err, &re), errors.As(err, &ee), errors.As(err, &se):
		return http.StatusBadRequest
	case errors.As(err, &pe):
		return http.StatusConflict
	case errors.As(err, &fe), comm.IsLinkFailure(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func reply(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), StatusFor(err))
}
