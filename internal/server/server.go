package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"boardline/internal/domain"
	"boardline/internal/engine"
	"boardline/internal/engine/auth"
	"boardline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"subtasks_incomplete"`
	Message string         `json:"message" example:"task has incomplete subtasks"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
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

// New returns an HTTP handler exposing the Boardline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Boardline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerOrgs(group, cfg.Engine)
	registerBoards(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerTemplates(group, cfg.Engine)
	registerFavorites(group, cfg.Engine)
	registerNotifications(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
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
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var nm auth.NotMemberError
	if errors.As(err, &nm) {
		return newAPIError(http.StatusForbidden, "not_member", err.Error(), map[string]any{"org_id": nm.OrgID})
	}
	var se engine.SubtasksIncompleteError
	if errors.As(err, &se) {
		return newAPIError(http.StatusConflict, "subtasks_incomplete", err.Error(), map[string]any{"incomplete": se.Incomplete})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "terminal"),
		strings.Contains(lowered, "still holds tasks"),
		strings.Contains(lowered, "last owner"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "different board"),
		strings.Contains(lowered, "different organization"),
		strings.Contains(lowered, "subtasks cannot"),
		strings.Contains(lowered, "does not belong"),
		strings.Contains(lowered, "duplicate"):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func hasPermission(perms []string, perm string) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

func requirePermission(ctx context.Context, e engine.Engine, orgID, perm string) error {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return authErr
	}
	if hasPermission(principal.Permissions, perm) {
		return nil
	}
	return e.Auth.Require(ctx, orgID, principal.ActorID, perm)
}

func boardForPermission(ctx context.Context, e engine.Engine, boardID, perm string) (domain.Board, error) {
	b, err := e.Repo.GetBoard(ctx, boardID)
	if err != nil {
		return domain.Board{}, err
	}
	if err := requirePermission(ctx, e, b.OrgID, perm); err != nil {
		return domain.Board{}, err
	}
	return b, nil
}

func taskForPermission(ctx context.Context, e engine.Engine, taskID, perm string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := boardForPermission(ctx, e, t.BoardID, perm); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
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

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		"/" + strings.TrimPrefix(path.Join(basePath, "health"), "/"):         true,
		"/" + strings.TrimPrefix(path.Join(basePath, "auth/dev/login"), "/"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Boardline API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
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

func registerOrgs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-org",
		Method:        http.MethodPost,
		Path:          "/orgs",
		Summary:       "Create organization",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateOrgRequest `json:"body"`
	}) (*struct {
		Body OrgResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.CreateOrg(ctx, input.Body.ID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrgResponse `json:"body"`
		}{Body: orgResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orgs",
		Method:      http.MethodGet,
		Path:        "/orgs",
		Summary:     "List organizations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []OrgResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListOrgs(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]OrgResponse, 0, len(items))
		for _, o := range items {
			res = append(res, orgResponse(o))
		}
		return &struct {
			Body []OrgResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-org",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}",
		Summary:     "Get organization",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body OrgResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.OrgID, auth.PermRead); err != nil {
			return nil, handleError(err)
		}
		o, err := e.Repo.GetOrg(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrgResponse `json:"body"`
		}{Body: orgResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-org-config",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/config",
		Summary:     "Get organization config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body OrgConfigResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.OrgID, auth.PermRead); err != nil {
			return nil, handleError(err)
		}
		cfg, err := e.Repo.GetOrgConfig(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrgConfigResponse `json:"body"`
		}{Body: configResponse(cfg)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/members",
		Summary:     "List members",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body []MemberResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.OrgID, auth.PermRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListMembers(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]MemberResponse, 0, len(items))
		for _, m := range items {
			res = append(res, memberResponse(m))
		}
		return &struct {
			Body []MemberResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-member",
		Method:      http.MethodPost,
		Path:        "/orgs/{org_id}/members",
		Summary:     "Add or update member",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string           `path:"org_id"`
		Body  AddMemberRequest `json:"body"`
	}) (*struct {
		Body MemberResponse `json:"body"`
	}, error) {
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		if err := requirePermission(ctx, e, input.OrgID, auth.PermManage); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddMember(ctx, input.OrgID, input.Body.ActorID, input.Body.Role, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberResponse `json:"body"`
		}{Body: memberResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-member",
		Method:      http.MethodDelete,
		Path:        "/orgs/{org_id}/members/{actor_id}",
		Summary:     "Remove member",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		OrgID   string `path:"org_id"`
		ActorID string `path:"actor_id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, input.OrgID, auth.PermManage); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveMember(ctx, input.OrgID, input.ActorID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerBoards(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-board",
		Method:        http.MethodPost,
		Path:          "/boards",
		Summary:       "Create board",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateBoardRequest `json:"body"`
	}) (*struct {
		Body BoardResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.OrgID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "org_id is required", nil)
		}
		if err := requirePermission(ctx, e, input.Body.OrgID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.CreateBoard(ctx, engine.BoardCreateOptions{
			ID:             input.Body.ID,
			OrgID:          input.Body.OrgID,
			Name:           input.Body.Name,
			Description:    stringOrEmpty(input.Body.Description),
			StatusOptions:  optionSeeds(input.Body.StatusOptions),
			SectionOptions: optionSeeds(input.Body.SectionOptions),
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BoardResponse `json:"body"`
		}{Body: boardResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-boards",
		Method:      http.MethodGet,
		Path:        "/boards",
		Summary:     "List boards",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		OrgID  string `query:"org_id"`
		Status string `query:"status" enum:",active,archived"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedBoards `json:"body"`
	}, error) {
		if input.OrgID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "org_id is required", nil)
		}
		if err := requirePermission(ctx, e, input.OrgID, auth.PermRead); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListBoards(ctx, repo.BoardFilters{
			OrgID:           input.OrgID,
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedBoards{Items: []BoardResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		resp.Items = mapBoards(items)
		return &struct {
			Body paginatedBoards `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-board",
		Method:      http.MethodGet,
		Path:        "/boards/{board_id}",
		Summary:     "Get board with its option sets",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BoardID string `path:"board_id"`
	}) (*struct {
		Body struct {
			Board          BoardResponse           `json:"board"`
			StatusOptions  []StatusOptionResponse  `json:"status_options"`
			SectionOptions []SectionOptionResponse `json:"section_options"`
		} `json:"body"`
	}, error) {
		b, err := boardForPermission(ctx, e, input.BoardID, auth.PermRead)
		if err != nil {
			return nil, handleError(err)
		}
		statuses, err := e.Repo.ListStatusOptions(ctx, b.ID)
		if err != nil {
			return nil, handleError(err)
		}
		sections, err := e.Repo.ListSectionOptions(ctx, b.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Board          BoardResponse           `json:"board"`
				StatusOptions  []StatusOptionResponse  `json:"status_options"`
				SectionOptions []SectionOptionResponse `json:"section_options"`
			} `json:"body"`
		}{}
		out.Body.Board = boardResponse(b)
		out.Body.StatusOptions = make([]StatusOptionResponse, 0, len(statuses))
		for _, o := range statuses {
			out.Body.StatusOptions = append(out.Body.StatusOptions, statusOptionResponse(o))
		}
		out.Body.SectionOptions = make([]SectionOptionResponse, 0, len(sections))
		for _, o := range sections {
			out.Body.SectionOptions = append(out.Body.SectionOptions, sectionOptionResponse(o))
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-board",
		Method:      http.MethodPatch,
		Path:        "/boards/{board_id}",
		Summary:     "Update board",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		BoardID string             `path:"board_id"`
		Body    UpdateBoardRequest `json:"body"`
	}) (*struct {
		Body BoardResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, err := boardForPermission(ctx, e, input.BoardID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.UpdateBoard(ctx, engine.BoardUpdateOptions{
			ID:          input.BoardID,
			Name:        input.Body.Name,
			Status:      input.Body.Status,
			Description: input.Body.Description,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BoardResponse `json:"body"`
		}{Body: boardResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-board",
		Method:      http.MethodDelete,
		Path:        "/boards/{board_id}",
		Summary:     "Delete board",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		BoardID string `path:"board_id"`
	}) (*struct{}, error) {
		if _, err := boardForPermission(ctx, e, input.BoardID, auth.PermManage); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteBoard(ctx, input.BoardID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "board-status",
		Method:      http.MethodGet,
		Path:        "/boards/{board_id}/status",
		Summary:     "Board task counts per column",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BoardID string `path:"board_id"`
	}) (*struct {
		Body BoardStatusResponse `json:"body"`
	}, error) {
		b, err := boardForPermission(ctx, e, input.BoardID, auth.PermRead)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountTasksByStatus(ctx, b.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BoardStatusResponse `json:"body"`
		}{Body: BoardStatusResponse{
			BoardID:    b.ID,
			Status:     b.Status,
			TaskCounts: counts,
		}}, nil
	})

	registerStatusOptions(api, e)
	registerSectionOptions(api, e)
}

func registerStatusOptions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-status-option",
		Method:        http.MethodPost,
		Path:          "/boards/{board_id}/status-options",
		Summary:       "Add status option",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		BoardID string                 `path:"board_id"`
		Body    AddStatusOptionRequest `json:"body"`
	}) (*struct {
		Body StatusOptionResponse `json:"body"`
	}, error) {
		if _, err := boardForPermission(ctx, e, input.BoardID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opt, err := e.AddStatusOption(ctx, engine.StatusOptionOptions{
			BoardID:    input.BoardID,
			Label:      input.Body.Label,
			Color:      input.Body.Color,
			IsTerminal: input.Body.Terminal,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusOptionResponse `json:"body"`
		}{Body: statusOptionResponse(opt)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-status-option",
		Method:      http.MethodPatch,
		Path:        "/boards/{board_id}/status-options/{id}",
		Summary:     "Update status option",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		BoardID string                    `path:"board_id"`
		ID      string                    `path:"id"`
		Body    UpdateStatusOptionRequest `json:"body"`
	}) (*struct {
		Body StatusOptionResponse `json:"body"`
	}, error) {
		if _, err := boardForPermission(ctx, e, input.BoardID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opt, err := e.UpdateStatusOption(ctx, input.ID, input.Body.Label, input.Body.Color, input.Body.Terminal, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusOptionResponse `json:"body"`
		}{Body: statusOptionResponse(opt)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-status-option",
		Method:      http.MethodDelete,
		Path:        "/boards/{board_id}/status-options/{id}",
		Summary:     "Delete status option",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		BoardID string `path:"board_id"`
		ID      string `path:"id"`
	}) (*struct{}, error) {
		if _, err := boardForPermission(ctx, e, input.BoardID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteStatusOption(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-status-options",
		Method:      http.MethodPost,
		Path:        "/boards/{board_id}/status-options/reorder",
		Summary:     "Reorder status options",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		BoardID string         `path:"board_id"`
		Body    ReorderRequest `json:"body"`
	}) (*struct{}, error) {
		if _, err := boardForPermission(ctx, e, input.BoardID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ReorderStatusOptions(ctx, input.BoardID, input.Body.IDs, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSectionOptions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-section-option",
		Method:        http.MethodPost,
		Path:          "/boards/{board_id}/section-options",
		Summary:       "Add section option",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		BoardID string                  `path:"board_id"`
		Body    AddSectionOptionRequest `json:"body"`
	}) (*struct {
		Body SectionOptionResponse `json:"body"`
	}, error) {
		if _, err := boardForPermission(ctx, e, input.BoardID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opt, err := e.AddSectionOption(ctx, input.BoardID, input.Body.Label, input.Body.Color, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SectionOptionResponse `json:"body"`
		}{Body: sectionOptionResponse(opt)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-section-option",
		Method:      http.MethodDelete,
		Path:        "/boards/{board_id}/section-options/{id}",
		Summary:     "Delete section option",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		BoardID string `path:"board_id"`
		ID      string `path:"id"`
	}) (*struct{}, error) {
		if _, err := boardForPermission(ctx, e, input.BoardID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteSectionOption(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		OrgID      string `path:"org_id"`
		BoardID    string `query:"board_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:",org,board,task,template,favorite"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.OrgID, auth.PermRead); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.OrgID, input.BoardID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		OrgID string `query:"org_id"`
	}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		orgID := principal.OrgID
		if input.OrgID != "" {
			orgID = input.OrgID
		}
		roles := principal.Roles
		perms := principal.Permissions
		if orgID != "" && len(perms) == 0 {
			if role, err := e.Auth.ActorRole(ctx, orgID, principal.ActorID); err == nil {
				if len(roles) == 0 {
					roles = []string{role}
				}
				if granted, err := e.Auth.ActorPermissions(ctx, orgID, principal.ActorID); err == nil {
					perms = granted
				}
			}
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     principal.ActorID,
			OrgID:       orgID,
			Roles:       nonNilSlice(roles),
			Permissions: nonNilSlice(perms),
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		org := strings.TrimSpace(input.Body.OrgID)
		if actor == "" || org == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id and org_id are required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, org, input.Body.Roles, input.Body.Scopes)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
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

func rawBodyMap(ctx context.Context) map[string]json.RawMessage {
	data := bodyBytes(ctx)
	if len(data) == 0 {
		return map[string]json.RawMessage{}
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return map[string]json.RawMessage{}
	}
	if inner, ok := outer["body"]; ok {
		var innerMap map[string]json.RawMessage
		if err := json.Unmarshal(inner, &innerMap); err == nil {
			return innerMap
		}
	}
	return outer
}

func isNullRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && bytes.Equal(trimmed, []byte("null"))
}
