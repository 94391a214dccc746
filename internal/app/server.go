package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"

	config "github.com/tigerroll/waves/pkg/waves/core/config"
	"github.com/tigerroll/waves/pkg/waves/core/job/scheduler"
	inframetrics "github.com/tigerroll/waves/pkg/waves/infrastructure/metrics"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// HealthChecker is one dependency reported by /healthz.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

const healthCheckTimeout = 5 * time.Second

// RouterParams are the fx dependencies of NewOpsRouter.
type RouterParams struct {
	fx.In
	Recorder *inframetrics.PrometheusRecorder
	Checks   []HealthChecker `group:"health_checks"`
}

// NewOpsRouter serves /metrics from the recorder registry and /healthz from
// the health checks. Every request is traced.
func NewOpsRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Recorder.GetRegistry(), promhttp.HandlerOpts{}))
	r.Get("/healthz", healthHandler(p.Checks))

	return otelhttp.NewHandler(r, "wavesd.ops")
}

func healthHandler(checks []HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()

		report := healthReport{Status: "ok", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				logger.Warnf("Health check '%s' failed: %v", c.Name(), err)
				report.Checks[c.Name()] = err.Error()
				report.Status = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			report.Checks[c.Name()] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}
}

// OpsServer exposes the ops router on observability.metrics_address.
type OpsServer struct {
	server *http.Server
	addr   string
}

// NewOpsServer binds the router to the configured address. An empty
// address disables the server.
func NewOpsServer(handler http.Handler, cfg *config.Config) *OpsServer {
	addr := cfg.Waves.Observability.MetricsAddress
	return &OpsServer{
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start listens synchronously so address errors fail the start, then
// serves in the background.
func (s *OpsServer) Start(context.Context) error {
	if s.addr == "" {
		logger.Infof("Ops server disabled (observability.metrics_address is empty).")
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	logger.Infof("Ops server listening on %s", ln.Addr())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Ops server stopped: %v", err)
		}
	}()
	return nil
}

// Shutdown drains the in-flight requests.
func (s *OpsServer) Shutdown(ctx context.Context) error {
	if s.addr == "" {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// RegisterDaemon starts the ops server and the scheduler with the
// application and stops them in reverse order.
func RegisterDaemon(lc fx.Lifecycle, srv *OpsServer, sched *scheduler.Scheduler) {
	lc.Append(fx.Hook{OnStart: srv.Start, OnStop: srv.Shutdown})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sched.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			sched.Stop()
			return nil
		},
	})
}
