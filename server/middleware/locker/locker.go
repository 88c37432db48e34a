// Package locker provides an HTTP middleware which allows an HTTPHandler to be locked, returning 423 (locked)
package locker

import (
	"net/http"
	"strings"
	"sync"

	"github.jpl.nasa.gov/bdube/mcc2/generichttp"
)

// Inject adds a lock route to a generichttp.HTTPer which is used to manipulate the locker
func Inject(other generichttp.HTTPer, l *Locker) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/lock"}] = l.HTTPGet
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/lock"}] = l.HTTPSet
}

// Locker is a type which behaves like a sync.Mutex without the blocking,
// and holds a list of path fragments to not protect
type Locker struct {
	mu       sync.Mutex
	isLocked bool

	// DoNotProtect is a list of paths not to apply the lock to
	DoNotProtect []string
}

// New returns a new Locker with DoNotProtect prepopulated with "lock"
func New() *Locker {
	return &Locker{DoNotProtect: []string{"lock"}}
}

// Lock the locker
func (l *Locker) Lock() { l.Set(true) }

// Unlock the locker
func (l *Locker) Unlock() { l.Set(false) }

// Set locks or unlocks the locker
func (l *Locker) Set(locked bool) {
	l.mu.Lock()
	l.isLocked = locked
	l.mu.Unlock()
}

// Locked returns true if the locker is locked
func (l *Locker) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isLocked
}

// protects is false for reads and for paths containing a DoNotProtect fragment
func (l *Locker) protects(r *http.Request) bool {
	if r.Method == http.MethodGet {
		return false
	}
	for _, frag := range l.DoNotProtect {
		if strings.Contains(r.URL.Path, frag) {
			return false
		}
	}
	return true
}

// Check is an HTTP middleware that answers 423 (locked) to protected requests
// while the locker is locked, and passes everything else down the line
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Locked() && l.protects(r) {
			http.Error(w, "bus is locked, POST {\"bool\": false} to /lock to release it", http.StatusLocked)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPSet locks or unlocks based on {"bool": x} in the request body
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	generichttp.SetBool(func(b bool) error {
		l.Set(b)
		return nil
	}, nil)(w, r)
}

// HTTPGet responds with {"bool": Locked()}
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	generichttp.GetBool(func() (bool, error) {
		return l.Locked(), nil
	}, nil)(w, r)
}
