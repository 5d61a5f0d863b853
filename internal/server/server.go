package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"buildpass/internal/domain"
	"buildpass/internal/engine"
	"buildpass/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"title is required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Build & Pass API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
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
	hcfg := huma.DefaultConfig("Build & Pass API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerChains(group, cfg.Engine)
	registerContributions(group, cfg.Engine)
	registerHandoffs(group, cfg.Engine)
	registerCredits(group, cfg.Engine)
	registerContributors(group, cfg.Engine)
	registerAgents(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAuth(group, cfg.Engine, cfg.Auth)

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
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidInput):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, engine.ErrNoActiveContribution):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, engine.ErrTransient):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), map[string]any{"retryable": true})
	case errors.Is(err, engine.ErrNoCompletionData):
		return newAPIError(http.StatusUnprocessableEntity, "no_completion_data", err.Error(), nil)
	case errors.Is(err, engine.ErrEvaluationUnavailable):
		return newAPIError(http.StatusFailedDependency, "evaluation_unavailable", err.Error(), nil)
	case errors.Is(err, engine.ErrEvaluationContract):
		return newAPIError(http.StatusBadGateway, "evaluation_contract", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	case http.StatusFailedDependency:
		return "failed_dependency"
	case http.StatusBadGateway:
		return "bad_gateway"
	default:
		return "internal_error"
	}
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

type chainPath struct {
	ChainID string `path:"chain_id"`
}

func registerChains(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-chain",
		Method:        http.MethodPost,
		Path:          "/chains",
		Summary:       "Start a build chain",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusFailedDependency,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Body StartChainRequest `json:"body"`
	}) (*struct {
		Body StartChainResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.StartChain(ctx, engine.StartChainOptions{
			OriginatorID: actorID,
			Title:        input.Body.Title,
			Description:  input.Body.Description,
			ProjectType:  input.Body.ProjectType,
			Idea:         input.Body.Idea,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StartChainResponse `json:"body"`
		}{Body: startChainResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-chains",
		Method:      http.MethodGet,
		Path:        "/chains",
		Summary:     "List chains",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"in_progress,completed,abandoned,"`
	}) (*struct {
		Body []domain.Chain `json:"body"`
	}, error) {
		items, err := e.Repo.ListChains(ctx, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Chain `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-chain",
		Method:      http.MethodGet,
		Path:        "/chains/{chain_id}",
		Summary:     "Chain with full link history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *chainPath) (*struct {
		Body ChainHistoryResponse `json:"body"`
	}, error) {
		h, err := e.GetChainHistory(ctx, input.ChainID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChainHistoryResponse `json:"body"`
		}{Body: ChainHistoryResponse{Chain: h.Chain, Links: h.Links, Contributors: h.Contributors}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-chain",
		Method:      http.MethodPost,
		Path:        "/chains/{chain_id}/complete",
		Summary:     "Mark a chain completed",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *chainPath) (*struct {
		Body domain.Chain `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CompleteChain(ctx, input.ChainID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Chain `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "abandon-chain",
		Method:      http.MethodPost,
		Path:        "/chains/{chain_id}/abandon",
		Summary:     "Abandon a chain",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ChainID string              `path:"chain_id"`
		Body    AbandonChainRequest `json:"body"`
	}) (*struct {
		Body domain.Chain `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AbandonChain(ctx, input.ChainID, actorID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Chain `json:"body"`
		}{Body: c}, nil
	})
}

func registerContributions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-contribution",
		Method:        http.MethodPost,
		Path:          "/chains/{chain_id}/contributions",
		Summary:       "Submit finished work on the active link",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusFailedDependency,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ChainID string                    `path:"chain_id"`
		Body    SubmitContributionRequest `json:"body"`
	}) (*struct {
		Body SubmitContributionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.SubmitContribution(ctx, engine.SubmitOptions{
			ChainID:         input.ChainID,
			ContributorID:   actorID,
			Kind:            domain.ContributorKind(input.Body.Kind),
			WorkDescription: input.Body.WorkDescription,
			WorkOutput:      input.Body.WorkOutput,
			TimeSpent:       input.Body.TimeSpent,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmitContributionResponse `json:"body"`
		}{Body: submitResponse(res)}, nil
	})
}

func registerHandoffs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-handoffs",
		Method:      http.MethodGet,
		Path:        "/chains/{chain_id}/handoffs",
		Summary:     "Open handoff requests for a chain",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *chainPath) (*struct {
		Body []domain.HandoffRequest `json:"body"`
	}, error) {
		items, err := e.ListOpenHandoffs(ctx, input.ChainID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.HandoffRequest `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-handoff",
		Method:      http.MethodPost,
		Path:        "/chains/{chain_id}/handoffs/accept",
		Summary:     "Accept the chain's pending handoff",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ChainID string               `path:"chain_id"`
		Body    AcceptHandoffRequest `json:"body"`
	}) (*struct {
		Body AcceptHandoffResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.AcceptHandoff(ctx, input.ChainID, domain.ContributorKind(input.Body.Kind), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AcceptHandoffResponse `json:"body"`
		}{Body: AcceptHandoffResponse{Handoff: res.Handoff, Link: res.Link, Chain: res.Chain}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-handoff",
		Method:      http.MethodPost,
		Path:        "/chains/{chain_id}/handoffs/reject",
		Summary:     "Decline the chain's pending handoff",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *chainPath) (*struct {
		Body domain.HandoffRequest `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		h, err := e.RejectHandoff(ctx, input.ChainID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.HandoffRequest `json:"body"`
		}{Body: h}, nil
	})
}

func registerCredits(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "calculate-credits",
		Method:        http.MethodPost,
		Path:          "/chains/{chain_id}/credits",
		Summary:       "Attribute credit for a completed chain",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *chainPath) (*struct {
		Body []domain.Credit `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		credits, err := e.CalculateCredits(ctx, input.ChainID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Credit `json:"body"`
		}{Body: credits}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-credits",
		Method:      http.MethodGet,
		Path:        "/chains/{chain_id}/credits",
		Summary:     "Recorded credits for a chain",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *chainPath) (*struct {
		Body []domain.Credit `json:"body"`
	}, error) {
		credits, err := e.Credits(ctx, input.ChainID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Credit `json:"body"`
		}{Body: credits}, nil
	})
}

func registerContributors(api huma.API, e engine.Engine) {
	type contributorPath struct {
		ContributorID string `path:"contributor_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "contributor-skills",
		Method:      http.MethodGet,
		Path:        "/contributors/{contributor_id}/skills",
		Summary:     "Skill assessments for a contributor",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *contributorPath) (*struct {
		Body []domain.SkillAssessment `json:"body"`
	}, error) {
		items, err := e.Profile(ctx, input.ContributorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.SkillAssessment `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-profile",
		Method:      http.MethodPut,
		Path:        "/contributors/{contributor_id}/profile",
		Summary:     "Register or refresh a matcher profile",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ContributorID string               `path:"contributor_id"`
		Body          UpsertProfileRequest `json:"body"`
	}) (*struct {
		Body domain.HumanProfile `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, err := e.UpsertHumanProfile(ctx, domain.HumanProfile{
			ContributorID:  input.ContributorID,
			DisplayName:    input.Body.DisplayName,
			SkillTags:      input.Body.SkillTags,
			CognitiveScore: input.Body.CognitiveScore,
			TechnicalScore: input.Body.TechnicalScore,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.HumanProfile `json:"body"`
		}{Body: p}, nil
	})
}

func registerAgents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-agent",
		Method:        http.MethodPost,
		Path:          "/agents",
		Summary:       "Register an automated contributor",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body RegisterAgentRequest `json:"body"`
	}) (*struct {
		Body domain.Agent `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		a, err := e.RegisterAgent(ctx, engine.RegisterAgentOptions{
			ID:           input.Body.ID,
			Name:         input.Body.Name,
			Capabilities: input.Body.Capabilities,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Agent `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "List agents",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"idle,active,busy,offline,"`
	}) (*struct {
		Body []domain.Agent `json:"body"`
	}, error) {
		items, err := e.Repo.ListAgents(ctx, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Agent `json:"body"`
		}{Body: items}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "chain-events",
		Method:      http.MethodGet,
		Path:        "/chains/{chain_id}/events",
		Summary:     "Append-only event log for a chain",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *chainPath) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if _, err := e.Repo.GetChain(ctx, input.ChainID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListChainEvents(ctx, input.ChainID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func registerAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/auth/api-keys",
		Summary:       "Mint an API key for the caller",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body CreateAPIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rawKey := uuid.NewString() + uuid.NewString()
		key := domain.APIKey{
			ID:      uuid.NewString(),
			ActorID: actorID,
			Name:    input.Body.Name,
			KeyHash: repo.HashAPIKey(rawKey),
		}
		if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateAPIKeyResponse `json:"body"`
		}{Body: CreateAPIKeyResponse{ID: key.ID, ActorID: actorID, Name: key.Name, Key: rawKey}}, nil
	})

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
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func signDevToken(secret, actorID string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	claims := jwt.RegisteredClaims{
		Subject:   actorID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
}
