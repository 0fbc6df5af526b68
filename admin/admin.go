// Package admin implements the optional HTTP sidecar exposing /metrics
// and /status alongside the cache's own text-protocol TCP listener.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	auth "github.com/abbot/go-http-auth"
	"github.com/prometheus/client_golang/prometheus"

	metricsprom "github.com/linecache/linecached/metric/prometheus"
	"github.com/linecache/linecached/store"
)

// Sidecar is the admin HTTP server run alongside the cache's own TCP
// listener.
type Sidecar struct {
	httpServer *http.Server
}

type statusPage struct {
	Variant   string `json:"variant"`
	Items     int64  `json:"items"`
	UsedBytes int64  `json:"used_bytes"`
	MaxBytes  int64  `json:"max_bytes"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Sets      int64  `json:"sets"`
	Deletes   int64  `json:"deletes"`
	Evictions int64  `json:"evictions"`
	UptimeSec int64  `json:"uptime_seconds"`
}

// NewSidecar builds (but does not start) an admin HTTP server at
// listenAddress, exposing reg's collectors at /metrics and a status page
// combining variant with s.Snapshot() at /status. If htpasswdFile is
// non-empty, both endpoints require HTTP basic auth against that file.
func NewSidecar(listenAddress string, s *store.Store, reg *prometheus.Registry, variant string, htpasswdFile string) *Sidecar {
	startedAt := time.Now()

	status := func(w http.ResponseWriter, r *http.Request) {
		snap := s.Snapshot()
		page := statusPage{
			Variant:   variant,
			Items:     snap.Items,
			UsedBytes: snap.UsedBytes,
			MaxBytes:  snap.MaxBytes,
			Hits:      snap.Hits,
			Misses:    snap.Misses,
			Sets:      snap.Sets,
			Deletes:   snap.Deletes,
			Evictions: snap.Evictions,
			UptimeSec: int64(time.Since(startedAt).Seconds()),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page)
	}

	mux := metricsprom.NewAdminMux(reg, status)

	var handler http.Handler = mux
	if htpasswdFile != "" {
		handler = wrapAuth(mux, htpasswdFile, listenAddress)
	}

	return &Sidecar{
		httpServer: &http.Server{Addr: listenAddress, Handler: handler},
	}
}

func wrapAuth(handler http.Handler, htpasswdFile string, realm string) http.Handler {
	secrets := auth.HtpasswdFileProvider(htpasswdFile)
	authenticator := auth.NewBasicAuthenticator(realm, secrets)
	return auth.JustCheck(authenticator, handler.ServeHTTP)
}

// Start begins serving in a background goroutine. errc, if non-nil,
// receives the error returned by ListenAndServe once the server stops
// (nil on a graceful Stop).
func (a *Sidecar) Start(errc chan<- error) {
	go func() {
		err := a.httpServer.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		if errc != nil {
			errc <- err
		}
	}()
}

// Stop gracefully shuts the sidecar down.
func (a *Sidecar) Stop(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}
