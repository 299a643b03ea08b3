package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/sergeJAVA/contractor-service/api/responses"
	"github.com/sergeJAVA/contractor-service/pkg/config"
	pkgerrors "github.com/sergeJAVA/contractor-service/pkg/errors"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
)

const (
	envHeader    = "X-Contractor-Env"
	probeTimeout = 2 * time.Second
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and reports 503 with the failing ones
// when any of them is down.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		failures := map[string]string{}
		for _, name := range names {
			dep := deps[name]
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				failures[name] = err.Error()
			}
		}
		if len(failures) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(failures))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
