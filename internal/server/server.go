package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"focusaura/internal/config"
	"focusaura/internal/engine"
	"focusaura/internal/mode"
	"focusaura/internal/session"
	"focusaura/internal/validate"
)

const (
	serviceName = "FocusAura API"
	apiVersion  = "1.0.0"
	timeLayout  = time.RFC3339
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Config for the HTTP API handler.
type Config struct {
	Composer engine.Composer
	Config   *config.Config
	// Sessions is optional; one is created from Config.Sessions when nil.
	Sessions *session.Tracker
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"validation failed: goal: is required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"errors\":[{\"field\":\"goal\",\"message\":\"is required\"}]}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the FocusAura API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = session.New(cfg.Config.Sessions)
	}
	basePath := strings.TrimRight(cfg.Config.Server.BasePath, "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestID)
	router.Use(newRequestLogger(cfg.Logger))
	router.Use(newRecoverer(cfg.Logger))
	router.Use(newCORS(cfg.Config.Server.AllowedOrigins))
	router.Use(captureBody)

	hcfg := huma.DefaultConfig(serviceName, apiVersion)
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	var group huma.API = api
	if basePath != "" {
		group = huma.NewGroup(api, basePath)
	}

	registerDocs(router, basePath)
	registerBanner(group)
	registerHealth(group, cfg.Config)
	registerIntervention(group, cfg.Composer, cfg.Sessions)
	registerSessions(group, cfg.Sessions)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve *validate.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"errors": ve.Fields})
	}
	if errors.Is(err, ErrSessionNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join("/", basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join("/", basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			documentInterventionBody(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

// documentInterventionBody attaches the request schema to POST /intervention.
// The handler validates the raw body itself, so huma never sees a Body field.
func documentInterventionBody(oas *huma.OpenAPI, basePath string) {
	if oas == nil || oas.Components == nil || oas.Components.Schemas == nil {
		return
	}
	item := oas.Paths[path.Join("/", basePath, "intervention")]
	if item == nil || item.Post == nil {
		return
	}
	schema := oas.Components.Schemas.Schema(reflect.TypeOf(InterventionRequest{}), true, "")
	item.Post.RequestBody = &huma.RequestBody{
		Required: true,
		Content: map[string]*huma.MediaType{
			"application/json": {Schema: schema},
		},
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>FocusAura API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerBanner(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "banner",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Service banner",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body BannerResponse `json:"body"`
	}, error) {
		return &struct {
			Body BannerResponse `json:"body"`
		}{Body: BannerResponse{
			Service: serviceName,
			Status:  "running",
			Message: "POST a focus event to /intervention",
		}}, nil
	})
}

func registerHealth(api huma.API, cfg *config.Config) {
	resolver := mode.NewResolver(cfg)
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: healthResponse(cfg, resolver.Routes())}, nil
	})
}

func registerIntervention(api huma.API, c engine.Composer, sessions *session.Tracker) {
	huma.Register(api, huma.Operation{
		OperationID: "create-intervention",
		Method:      http.MethodPost,
		Path:        "/intervention",
		Summary:     "Compose an intervention for a focus event",
		Description: "Always answers with a complete intervention once the event validates; provider failures fall back to templates.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body InterventionResponse `json:"body"`
	}, error) {
		ev, err := validate.FocusEvent(bodyBytes(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		if prev, ok := sessions.Observe(ev.SessionID, ev.Category); ok {
			return &struct {
				Body InterventionResponse `json:"body"`
			}{Body: interventionResponse(prev)}, nil
		}
		resp := c.Compose(ctx, ev)
		if !resp.Complete() {
			return nil, handleError(errors.New("composer returned an incomplete response"))
		}
		sessions.Record(ev.SessionID, ev.Category, resp)
		return &struct {
			Body InterventionResponse `json:"body"`
		}{Body: interventionResponse(resp)}, nil
	})
}

func registerSessions(api huma.API, sessions *session.Tracker) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List active sessions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SessionListResponse `json:"body"`
	}, error) {
		items := mapSessions(sessions.List())
		return &struct {
			Body SessionListResponse `json:"body"`
		}{Body: SessionListResponse{Sessions: items, Count: len(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-session",
		Method:        http.MethodDelete,
		Path:          "/sessions/{session_id}",
		Summary:       "Delete session",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct{}, error) {
		if !sessions.Delete(input.SessionID) {
			return nil, handleError(fmt.Errorf("%w: %s", ErrSessionNotFound, input.SessionID))
		}
		return &struct{}{}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}
