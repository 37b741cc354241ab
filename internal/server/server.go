// Package server exposes the pipeline over an HTTP API built with huma on a
// chi router. Every failure is answered with a {code, message} envelope.
package server

import (
	"context"
	"errors"
	"net/http"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/anthropic/agentwatch/internal/alerting"
	"github.com/anthropic/agentwatch/internal/analyzer"
	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/ingest"
	"github.com/anthropic/agentwatch/internal/ledger"
	"github.com/anthropic/agentwatch/internal/logger"
	"github.com/anthropic/agentwatch/internal/report"
	"github.com/anthropic/agentwatch/internal/store"
)

// Config for the HTTP API handler. Every component is required.
type Config struct {
	Store    *store.Store
	Ledger   *ledger.Ledger
	Analyzer *analyzer.Analyzer
	Alerts   *alerting.Engine
	Reports  *report.Compiler
	Ingest   *ingest.Dispatcher
	Logger   *logger.Logger
	BasePath string
}

// apiError is the error envelope.
type apiError struct {
	status  int
	Code    string `json:"code" example:"not_found"`
	Message string `json:"message" example:"task \"t1\": not found"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

// New returns an HTTP handler exposing the API under cfg.BasePath (default /v1).
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := logger.OrNop(cfg.Logger)

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, _ ...error) huma.StatusError {
		return newAPIError(status, "", msg)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, _ ...error) huma.StatusError {
		return newAPIError(status, "", msg)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(log))

	hcfg := huma.DefaultConfig("agentwatch API", "1.0.0")
	hcfg.OpenAPIPath = path.Join(basePath, "openapi")
	hcfg.DocsPath = ""
	hcfg.Components.Schemas = huma.NewMapRegistry("#/components/schemas/", schemaNamer)
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group, cfg.Store)
	registerIngest(group, cfg.Ingest)
	registerActivities(group, cfg.Ledger)
	registerTasks(group, cfg.Ledger)
	registerChanges(group, cfg.Analyzer)
	registerMonitors(group, cfg.Analyzer)
	registerChannels(group, cfg.Alerts)
	registerRules(group, cfg.Alerts)
	registerTemplates(group, cfg.Alerts)
	registerAlerts(group, cfg.Alerts)
	registerReports(group, cfg.Reports)

	return router, nil
}

// schemaNamer qualifies schema names with their package so that, for
// example, report.Summary and metrics.Summary do not collide.
func schemaNamer(t reflect.Type, hint string) string {
	name := huma.DefaultSchemaNamer(t, hint)
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Name() == "" || base.PkgPath() == "" {
		return name
	}
	pkg := path.Base(base.PkgPath())
	return strings.ToUpper(pkg[:1]) + pkg[1:] + name
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start).String(),
			)
		})
	}
}

func newAPIError(status int, code, message string) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Code: code, Message: message}
}

// handleError maps error kinds onto HTTP statuses.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	code := errs.Code(err)
	switch code {
	case "not_found", "channel_not_found":
		return newAPIError(http.StatusNotFound, code, err.Error())
	case "invalid_state":
		return newAPIError(http.StatusBadRequest, code, err.Error())
	case "validation_failed":
		return newAPIError(http.StatusUnprocessableEntity, code, err.Error())
	case "channel_dispatch_failed":
		return newAPIError(http.StatusBadGateway, code, err.Error())
	default:
		return newAPIError(http.StatusInternalServerError, code, err.Error())
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusBadGateway:
		return "channel_dispatch_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// splitList parses a comma separated query value.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type healthBody struct {
	Status        string       `json:"status"`
	SchemaVersion int          `json:"schemaVersion"`
	Counts        store.Counts `json:"counts"`
}

func registerHealth(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body healthBody `json:"body"`
	}, error) {
		v, err := s.SchemaVersion(ctx)
		if err != nil {
			return nil, handleError(errs.Store("schema version", err))
		}
		counts, err := s.Counts(ctx)
		if err != nil {
			return nil, handleError(errs.Store("counts", err))
		}
		return &struct {
			Body healthBody `json:"body"`
		}{Body: healthBody{Status: "ok", SchemaVersion: v, Counts: counts}}, nil
	})
}

func registerIngest(api huma.API, d *ingest.Dispatcher) {
	huma.Register(api, huma.Operation{
		OperationID: "ingest",
		Method:      http.MethodPost,
		Path:        "/ingest",
		Summary:     "Dispatch one inbound envelope",
		Description: "Accepts the same {\"kind\": ...} envelopes as the inbox file and the IPC socket.",
		Tags:        []string{"system"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		RawBody []byte
	}) (*struct {
		Body any `json:"body"`
	}, error) {
		if len(input.RawBody) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required")
		}
		out, err := d.Dispatch(ctx, input.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body any `json:"body"`
		}{Body: out}, nil
	})
}
