// Package ascii contains some injectable HTTP interfaces to ASCII hardware
package ascii

import (
	"context"
	"net/http"

	"github.jpl.nasa.gov/bdube/mcc2/generichttp"
)

// RawCommunicator has a single Raw method which sends a command body and
// returns the reply
type RawCommunicator interface {
	Raw(context.Context, string) (string, error)
}

// RawWrapper is a wrapper around a raw communicator
type RawWrapper struct {
	Comm RawCommunicator

	// Code chooses the status of failed requests
	Code generichttp.ErrorCoder
}

// HTTPRaw provides access to the raw function over http.  The request is
// {"str": command} and so is the response.
func (rw *RawWrapper) HTTPRaw(w http.ResponseWriter, r *http.Request) {
	generichttp.SetString(func(s string) (string, error) {
		return rw.Comm.Raw(r.Context(), s)
	}, rw.Code)(w, r)
}

// InjectRawComm injects a /raw POST route into the route table of an HTTPer
func InjectRawComm(other generichttp.HTTPer, raw RawCommunicator, code generichttp.ErrorCoder) {
	wrap := &RawWrapper{Comm: raw, Code: code}
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/raw"}] = wrap.HTTPRaw
}
