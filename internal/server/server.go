package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"reviewline/internal/domain"
	"reviewline/internal/engine"
	"reviewline/internal/lifecycle"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	// MetricsPath mounts the Prometheus handler for Engine.Metrics when set.
	MetricsPath string
	Log         zerolog.Logger
}

type requestKey struct{}

// apiError is the error envelope returned by every endpoint.
type apiError struct {
	status    int
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Path      string `json:"path"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

const transitionSuccess = "Transition successful"

// New returns an HTTP handler exposing the lifecycle API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, withDetails(msg, errs), "")
	}
	huma.NewErrorWithContext = func(hctx huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// request validation failures are client errors
			status = http.StatusBadRequest
		}
		p := ""
		if hctx != nil {
			p = hctx.URL().Path
		}
		return newAPIError(status, withDetails(msg, errs), p)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(accessLog(cfg.Log))
	router.Use(middleware.Recoverer)
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	hcfg := huma.DefaultConfig("Reviewline API", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerLifecycle(group, cfg.Engine)
	registerReviews(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)
	if cfg.MetricsPath != "" && cfg.Engine.Metrics != nil {
		router.Handle(cfg.MetricsPath, promhttp.HandlerFor(cfg.Engine.Metrics.Registry, promhttp.HandlerOpts{}))
	}
	return router, nil
}

func withDetails(msg string, errs []error) string {
	if len(errs) == 0 {
		return msg
	}
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	if len(parts) == 0 {
		return msg
	}
	return msg + ": " + strings.Join(parts, "; ")
}

func newAPIError(status int, message, requestPath string) huma.StatusError {
	return &apiError{
		status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Message:   message,
		Path:      requestPath,
	}
}

func requestPath(ctx context.Context) string {
	if r, ok := ctx.Value(requestKey{}).(*http.Request); ok && r != nil {
		return r.URL.Path
	}
	return ""
}

// handleError maps lifecycle errors onto HTTP statuses. Storage failures are
// reported without their cause.
func handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	p := requestPath(ctx)
	switch domain.ErrorKind(err) {
	case domain.KindNotFound:
		return newAPIError(http.StatusNotFound, err.Error(), p)
	case domain.KindInvalidArgument, domain.KindTransition:
		return newAPIError(http.StatusBadRequest, err.Error(), p)
	case domain.KindExclusivity, domain.KindConflict:
		return newAPIError(http.StatusConflict, err.Error(), p)
	case domain.KindInvalidState:
		var ise *domain.InvalidStateError
		if errors.As(err, &ise) && ise.Corrupt {
			return newAPIError(http.StatusInternalServerError, err.Error(), p)
		}
		return newAPIError(http.StatusBadRequest, err.Error(), p)
	default:
		return newAPIError(http.StatusInternalServerError, "internal error", p)
	}
}

func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var once sync.Once
	var doc []byte
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { doc, _ = json.Marshal(api.OpenAPI()) })
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type textOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

func registerLifecycle(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "execute-transition",
		Method:      http.MethodPost,
		Path:        "/lifecycle/transition",
		Summary:     "Execute a lifecycle operation on a review document",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body TransitionRequest
	}) (*textOutput, error) {
		_, err := e.ExecuteTransition(ctx, engine.TransitionRequest{
			DocumentID: strings.TrimSpace(input.Body.DocumentID),
			Operation:  input.Body.Operation,
			Actor:      strings.TrimSpace(input.Body.ModifiedBy),
			Comment:    input.Body.Comment,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &textOutput{ContentType: "text/plain", Body: []byte(transitionSuccess)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "available-operations",
		Method:      http.MethodGet,
		Path:        "/lifecycle/operations/{documentId}",
		Summary:     "List operations available for a document",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DocumentID string `path:"documentId"`
	}) (*struct {
		Body OperationsResponse `json:"body"`
	}, error) {
		doc, ops, err := e.AvailableOperations(ctx, input.DocumentID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body OperationsResponse `json:"body"`
		}{Body: OperationsResponse{DocumentID: doc.ID, State: string(doc.State), Operations: lifecycle.Names(ops)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "audit-trail",
		Method:      http.MethodGet,
		Path:        "/lifecycle/trail/{systemCode}",
		Summary:     "Audit trail of a system, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SystemCode string `path:"systemCode"`
	}) (*struct {
		Body TrailResponse `json:"body"`
	}, error) {
		h, nodes, err := e.TrailHistory(ctx, input.SystemCode)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body TrailResponse `json:"body"`
		}{Body: trailResponse(h, nodes)}, nil
	})
}

func registerReviews(api huma.API, e engine.Engine) {
	type docOutput struct {
		Body ReviewDocumentResponse `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "create-review",
		Method:      http.MethodPost,
		Path:        "/solution-review",
		Summary:     "Create a draft solution review",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateReviewRequest
	}) (*docOutput, error) {
		payload, err := marshalPayload(input.Body.Payload)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		doc, err := e.CreateDraft(ctx, engine.CreateOptions{
			ID:         strings.TrimSpace(input.Body.ID),
			SystemCode: input.Body.SystemCode,
			Payload:    payload,
			Actor:      input.Body.CreatedBy,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &docOutput{Body: documentResponse(doc)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fork-review",
		Method:      http.MethodPost,
		Path:        "/solution-review/{systemCode}/from-active",
		Summary:     "Start a draft from the system's active review",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SystemCode string `path:"systemCode"`
		Body       ForkReviewRequest
	}) (*docOutput, error) {
		doc, err := e.CreateFromActive(ctx, input.SystemCode, input.Body.CreatedBy)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &docOutput{Body: documentResponse(doc)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-review",
		Method:      http.MethodGet,
		Path:        "/solution-review/{id}",
		Summary:     "Get a solution review",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*docOutput, error) {
		doc, err := e.GetDocument(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &docOutput{Body: documentResponse(doc)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-review",
		Method:      http.MethodPut,
		Path:        "/solution-review/{id}",
		Summary:     "Replace the payload of a draft review",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateReviewRequest
	}) (*docOutput, error) {
		payload, err := marshalPayload(input.Body.Payload)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		doc, err := e.UpdateDraft(ctx, input.ID, payload, input.Body.ModifiedBy)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &docOutput{Body: documentResponse(doc)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-review",
		Method:        http.MethodDelete,
		Path:          "/solution-review/{id}",
		Summary:       "Delete a draft review",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID         string `path:"id"`
		ModifiedBy string `query:"modifiedBy" required:"true" minLength:"1"`
	}) (*struct{}, error) {
		if err := e.DeleteDraft(ctx, input.ID, input.ModifiedBy); err != nil {
			return nil, handleError(ctx, err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-system-reviews",
		Method:      http.MethodGet,
		Path:        "/solution-review/system/{systemCode}",
		Summary:     "List every review of a system",
	}, func(ctx context.Context, input *struct {
		SystemCode string `path:"systemCode"`
		State      string `query:"state" enum:"DRAFT,SUBMITTED,APPROVED,ACTIVE,OUTDATED"`
	}) (*struct {
		Body []ReviewDocumentResponse `json:"body"`
	}, error) {
		docs, err := e.ListBySystem(ctx, input.SystemCode)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if input.State != "" {
			filtered := docs[:0]
			for _, d := range docs {
				if string(d.State) == input.State {
					filtered = append(filtered, d)
				}
			}
			docs = filtered
		}
		return &struct {
			Body []ReviewDocumentResponse `json:"body"`
		}{Body: mapDocuments(docs)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent lifecycle events",
	}, func(ctx context.Context, input *struct {
		SystemCode string `query:"systemCode"`
		Type       string `query:"type"`
		Limit      int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		evs, err := e.RecentEvents(ctx, input.Limit, input.SystemCode, input.Type)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		items := make([]EventResponse, 0, len(evs))
		for _, ev := range evs {
			items = append(items, eventResponse(ev))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: items}, nil
	})
}

func marshalPayload(p map[string]any) (json.RawMessage, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", domain.ErrInvalidArgument, err)
	}
	return data, nil
}
