package motion

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/sirupsen/logrus"

	"github.jpl.nasa.gov/bdube/mcc2/generichttp"
	"github.jpl.nasa.gov/bdube/mcc2/phytron"
	"github.jpl.nasa.gov/bdube/mcc2/util"
)

func testServer(t *testing.T) (*httptest.Server, *phytron.Registry) {
	t.Helper()
	log := logrus.New()
	log.Out = ioutil.Discard
	reg, err := phytron.Open(phytron.BusConfig{
		Name:     "test",
		Mock:     true,
		Checksum: true,
		Retries:  1,
		Axes: map[string]phytron.AxisConfig{
			"x": {Module: 0, Channel: phytron.AxisX, Limits: util.Limiter{Min: 0, Max: 500}},
			"y": {Module: 0, Channel: phytron.AxisY},
		},
	}, log)
	if err != nil {
		t.Fatal(err)
	}
	r := chi.NewRouter()
	NewHTTPMotionController(reg).RT().Bind(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		reg.Close()
	})
	return srv, reg
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestMoveAndPoll(t *testing.T) {
	srv, _ := testServer(t)
	if resp := post(t, srv.URL+"/axis/x/poll", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("poll: %s", resp.Status)
	}
	if resp := post(t, srv.URL+"/axis/x/pos", `{"f64": 299.6}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("move: %s", resp.Status)
	}

	resp, err := http.Get(srv.URL + "/axis/x/state")
	if err != nil {
		t.Fatal(err)
	}
	var snap struct {
		State    string
		Position phytron.Position
	}
	json.NewDecoder(resp.Body).Decode(&snap)
	if snap.State != "Moving" {
		t.Errorf("expected Moving, got %s", snap.State)
	}

	post(t, srv.URL+"/axis/x/poll", "")
	resp, err = http.Get(srv.URL + "/axis/x/pos")
	if err != nil {
		t.Fatal(err)
	}
	var f generichttp.FloatT
	json.NewDecoder(resp.Body).Decode(&f)
	if f.F64 != 300 {
		t.Errorf("expected 300, got %v", f.F64)
	}

	resp, _ = http.Get(srv.URL + "/axis/x/inposition")
	var b generichttp.BoolT
	json.NewDecoder(resp.Body).Decode(&b)
	if !b.Bool {
		t.Error("axis should be in position")
	}
}

func TestRelativeMove(t *testing.T) {
	srv, reg := testServer(t)
	post(t, srv.URL+"/axis/y/poll", "")
	if resp := post(t, srv.URL+"/axis/y/pos?relative=true", `{"f64": -40}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("move: %s", resp.Status)
	}
	post(t, srv.URL+"/axis/y/poll", "")
	a, _ := reg.Axis("y")
	if got := a.Position().Steps; got != -40 {
		t.Errorf("expected -40, got %d", got)
	}
	if resp := post(t, srv.URL+"/axis/y/pos?relative=maybe", `{"f64": 1}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad relative flag should be 400, got %s", resp.Status)
	}
	if resp := post(t, srv.URL+"/axis/x/pos", `{"f64": 100}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("move: %s", resp.Status)
	}
	if resp := post(t, srv.URL+"/axis/x/pos?relative=true", `{"f64": 10}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("relative move while moving should be 400, got %s", resp.Status)
	}
}

func TestErrorStatusCodes(t *testing.T) {
	srv, reg := testServer(t)
	if resp := post(t, srv.URL+"/axis/x/pos", `{"f64": 600}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("out of limits should be 400, got %s", resp.Status)
	}
	if resp := post(t, srv.URL+"/axis/nope/home", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown axis should be 404, got %s", resp.Status)
	}

	reg.Simulator().RejectNext()
	if resp := post(t, srv.URL+"/axis/x/home", ""); resp.StatusCode != http.StatusConflict {
		t.Errorf("rejected command should be 409, got %s", resp.Status)
	}
	if resp := post(t, srv.URL+"/axis/x/pos", `{"f64": 10}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("move in Error should be 400, got %s", resp.Status)
	}
	if resp := post(t, srv.URL+"/axis/x/reset", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("reset: %s", resp.Status)
	}

	reg.Simulator().DropResponses(true)
	if resp := post(t, srv.URL+"/axis/y/stop", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("dead line should be 503, got %s", resp.Status)
	}
	reg.Simulator().DropResponses(false)
	if resp := post(t, srv.URL+"/axis/y/reconnect", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("reconnect: %s", resp.Status)
	}
}

func TestVelocityLimitsAndFirmware(t *testing.T) {
	srv, _ := testServer(t)
	if resp := post(t, srv.URL+"/axis/x/velocity", `{"f64": 2500}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("set velocity: %s", resp.Status)
	}
	resp, _ := http.Get(srv.URL + "/axis/x/velocity")
	var f generichttp.FloatT
	json.NewDecoder(resp.Body).Decode(&f)
	if f.F64 != 2500 {
		t.Errorf("expected 2500, got %v", f.F64)
	}
	if resp := post(t, srv.URL+"/axis/x/velocity", `{"f64": 1e6}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("velocity out of range should be 400, got %s", resp.Status)
	}

	resp, _ = http.Get(srv.URL + "/axis/x/limits")
	var lim util.Limiter
	json.NewDecoder(resp.Body).Decode(&lim)
	if lim.Max != 500 {
		t.Errorf("unexpected limits %+v", lim)
	}
	resp, _ = http.Get(srv.URL + "/axis/y/limits")
	body, _ := ioutil.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "null" {
		t.Errorf("axis without limits should give null, got %s", body)
	}

	resp, _ = http.Get(srv.URL + "/axis/y/firmware")
	var s generichttp.StrT
	json.NewDecoder(resp.Body).Decode(&s)
	if s.Str == "" {
		t.Error("empty firmware string")
	}
}
