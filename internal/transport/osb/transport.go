// Package osb adapts internal/broker's request handler to the Open Service
// Broker HTTP contract: route shapes, header checks, request/response DTOs,
// and status codes. It carries no domain logic of its own.
package osb

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	"github.com/banhbaoring/dns-broker/internal/broker"
	"github.com/banhbaoring/dns-broker/internal/models"
	apierrors "github.com/banhbaoring/dns-broker/internal/pkg/errors"
	"github.com/banhbaoring/dns-broker/internal/pkg/response"
)

// APIVersion is the Open Service Broker API version this transport speaks.
// checkAPIVersion requires the X-Broker-API-Version header to be present but
// does not compare its value against APIVersion.
const APIVersion = "2.16"

// Transport wires broker.Handler to chi routes.
type Transport struct {
	Handler  *broker.Handler
	validate *validator.Validate
}

// New constructs a Transport over handler.
func New(handler *broker.Handler) *Transport {
	return &Transport{Handler: handler, validate: validator.New()}
}

// Routes returns the chi router mounted at the broker API root.
func (t *Transport) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(checkAPIVersion)

	r.With(gzhttp.GzipHandler).Get("/catalog", t.catalog)

	r.Route("/service_instances/{instance_id}", func(r chi.Router) {
		r.Put("/", t.provision)
		r.Patch("/", t.update)
		r.Delete("/", t.deprovision)
		r.With(gzhttp.GzipHandler).Get("/last_operation", t.lastOperation)
	})

	return r
}

func checkAPIVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Broker-API-Version") == "" {
			response.Error(w, apierrors.NewBadRequestError("X-Broker-API-Version header is required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *Transport) catalog(w http.ResponseWriter, r *http.Request) {
	response.OK(w, t.Handler.Catalog())
}

// provisionRequest is the PUT /v2/service_instances/{instance_id} body.
type provisionRequest struct {
	ServiceID        string          `json:"service_id" validate:"required"`
	PlanID           string          `json:"plan_id" validate:"required"`
	OrganizationGUID string          `json:"organization_guid"`
	SpaceGUID        string          `json:"space_guid"`
	Parameters       requestParams   `json:"parameters"`
}

// updateRequest is the PATCH /v2/service_instances/{instance_id} body.
type updateRequest struct {
	ServiceID  string        `json:"service_id" validate:"required"`
	Parameters requestParams `json:"parameters"`
}

// requestParams mirrors the platform's JSON parameter shape. Every field is
// a pointer or a map (nil when absent) so we can tell "key absent" from "key
// present with zero value",
// which broker.Params needs for update's presence-matters semantics.
type requestParams struct {
	Domains *string `json:"domains"`

	Origin         *string                                   `json:"origin"`
	Path           *string                                   `json:"path"`
	ForwardCookies *string                                   `json:"forward_cookies"`
	ForwardHeaders *string                                   `json:"forward_headers"`
	InsecureOrigin *bool                                     `json:"insecure_origin"`
	ErrorResponses map[string]models.ErrorResponseOverride `json:"error_responses"`
}

func (p requestParams) toBrokerParams() broker.Params {
	return broker.Params{
		Domains:        p.Domains,
		Origin:         p.Origin,
		Path:           p.Path,
		ForwardCookies: p.ForwardCookies,
		ForwardHeaders: p.ForwardHeaders,
		InsecureOrigin: p.InsecureOrigin,
		ErrorResponses: p.ErrorResponses,
	}
}

type operationResponse struct {
	Operation string `json:"operation"`
}

func acceptsIncomplete(r *http.Request) bool {
	return r.URL.Query().Get("accepts_incomplete") == "true"
}

// instanceIDFrom validates the {instance_id} path segment as a UUID, the
// shape the platform is contracted to generate, before it ever reaches the
// handler or a query.
func instanceIDFrom(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "instance_id")
	if _, err := uuid.Parse(raw); err != nil {
		return "", apierrors.NewBadRequestError("instance_id must be a UUID")
	}
	return raw, nil
}

func (t *Transport) provision(w http.ResponseWriter, r *http.Request) {
	instanceID, err := instanceIDFrom(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("invalid request body"))
		return
	}
	if err := t.validate.Struct(req); err != nil {
		response.Error(w, apierrors.NewValidationError("request", err.Error()))
		return
	}

	opID, err := t.Handler.Provision(r.Context(), instanceID, req.PlanID, req.Parameters.toBrokerParams(), acceptsIncomplete(r), "")
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Accepted(w, operationResponse{Operation: formatOperationID(opID)})
}

func (t *Transport) update(w http.ResponseWriter, r *http.Request) {
	instanceID, err := instanceIDFrom(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("invalid request body"))
		return
	}
	if err := t.validate.Struct(req); err != nil {
		response.Error(w, apierrors.NewValidationError("request", err.Error()))
		return
	}

	opID, created, err := t.Handler.Update(r.Context(), instanceID, req.Parameters.toBrokerParams(), acceptsIncomplete(r), "")
	if err != nil {
		response.Error(w, err)
		return
	}
	if !created {
		response.OK(w, struct{}{})
		return
	}
	response.Accepted(w, operationResponse{Operation: formatOperationID(opID)})
}

func (t *Transport) deprovision(w http.ResponseWriter, r *http.Request) {
	instanceID, err := instanceIDFrom(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	opID, err := t.Handler.Deprovision(r.Context(), instanceID, acceptsIncomplete(r), "")
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Accepted(w, operationResponse{Operation: formatOperationID(opID)})
}

type lastOperationResponse struct {
	State       models.OperationState `json:"state"`
	Description string                 `json:"description"`
}

func (t *Transport) lastOperation(w http.ResponseWriter, r *http.Request) {
	instanceID, err := instanceIDFrom(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	opID, err := parseOperationID(r.URL.Query().Get("operation"))
	if err != nil {
		response.Error(w, apierrors.NewBadRequestError("operation query parameter is required"))
		return
	}

	state, description, err := t.Handler.LastOperation(r.Context(), instanceID, opID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, lastOperationResponse{State: state, Description: description})
}
