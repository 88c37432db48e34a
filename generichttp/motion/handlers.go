package motion

import (
	"context"
	"encoding/json"
	"go/types"
	"net/http"

	"github.com/go-chi/chi"

	"github.jpl.nasa.gov/bdube/mcc2/generichttp"
	"github.jpl.nasa.gov/bdube/mcc2/util"
)

// axisCall returns an HTTP handler func that calls fn for the axis in the URL
func axisCall(fn func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(r.Context(), chi.URLParam(r, "axis"))
		if err != nil {
			reply(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// axisSteps returns an HTTP handler func that reads {"f64": x} from the body
// and calls fn with x rounded to whole steps
func axisSteps(fn func(context.Context, string, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := generichttp.FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fn(r.Context(), chi.URLParam(r, "axis"), util.RoundSteps(f.F64))
		if err != nil {
			reply(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// axisValue returns an HTTP handler func that responds with the integer from
// fn as {"f64": x}
func axisValue(fn func(context.Context, string) (int64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := fn(r.Context(), chi.URLParam(r, "axis"))
		if err != nil {
			reply(w, err)
			return
		}
		hp := generichttp.HumanPayload{T: types.Float64, Float: float64(v)}
		hp.EncodeAndRespond(w, r)
	}
}
