/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"github.com/billhaggle/reqguard/httpserver/middleware"
	"github.com/billhaggle/reqguard/log"
	"github.com/billhaggle/reqguard/reqclient"
	"github.com/billhaggle/reqguard/restapi"
	"github.com/billhaggle/reqguard/schema"
)

// ErrorDomain is the domain of errors the gateway responds with.
const ErrorDomain = "Gateway"

// StatusClientClosedRequest is the non-standard status used when the call was cancelled.
const StatusClientClosedRequest = 499

const (
	errCodeEmptyMessages = "emptyMessages"
	errCodeDuplicateID   = "duplicateRequestId"
)

type pendingRequestData struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
}

type pendingRequestsData struct {
	Requests []pendingRequestData `json:"requests"`
}

type handlers struct {
	client      *reqclient.Client
	settings    *Settings
	maxBodySize uint64
	logger      log.FieldLogger
}

func (h *handlers) routes(router chi.Router) {
	router.Post("/v1/chat/completions", h.chatCompletions)
	router.Get("/v1/requests", h.listRequests)
	router.Delete("/v1/requests/{id}", h.cancelRequest)
}

func (h *handlers) getLogger(r *http.Request) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return h.logger
}

func (h *handlers) chatCompletions(rw http.ResponseWriter, r *http.Request) {
	logger := h.getLogger(r)

	var req ChatRequest
	restapi.SetRequestMaxBodySize(rw, r, h.maxBodySize)
	if err := restapi.DecodeRequestJSON(r, &req); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, ErrorDomain, err, logger)
		return
	}
	if len(req.Messages) == 0 {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(ErrorDomain, errCodeEmptyMessages, "At least one message is required."), logger)
		return
	}

	opts := []reqclient.CallOption{
		reqclient.WithRequestType("chat"),
		reqclient.WithExtractionStrategies(chatReplyStrategies...),
	}
	requestID := middleware.GetRequestIDFromContext(r.Context())
	if requestID != "" {
		opts = append(opts, reqclient.WithRequestID(requestID))
	}
	if replaceStale, _ := cast.ToBoolE(r.URL.Query().Get("replaceStale")); replaceStale {
		opts = append(opts, reqclient.WithReplaceStale())
	}

	reply, err := reqclient.Call[ChatReply](r.Context(), h.client, http.MethodPost, h.settings.ChatPath,
		newUpstreamChatRequest(req, h.settings.Model), ChatReplySchema, opts...)
	if err != nil {
		respondCallError(rw, err, logger)
		return
	}
	restapi.RespondJSON(rw, ChatResponse{RequestID: requestID, Reply: reply}, logger)
}

func (h *handlers) listRequests(rw http.ResponseWriter, r *http.Request) {
	registry := h.client.Registry()
	data := pendingRequestsData{Requests: make([]pendingRequestData, 0, registry.Len())}
	for _, id := range registry.IDs() {
		if entry, ok := registry.Get(id); ok {
			data.Requests = append(data.Requests, pendingRequestData{ID: entry.ID, StartedAt: entry.StartedAt})
		}
	}
	sort.SliceStable(data.Requests, func(i, j int) bool {
		return data.Requests[i].StartedAt.Before(data.Requests[j].StartedAt)
	})
	restapi.RespondJSON(rw, data, h.getLogger(r))
}

func (h *handlers) cancelRequest(rw http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.client.Cancel(id) {
		restapi.RespondError(rw, http.StatusNotFound,
			restapi.NewError(ErrorDomain, restapi.ErrCodeNotFound, "No pending request with such id.").
				AddContext("id", id), h.getLogger(r))
		return
	}
	h.getLogger(r).Info("pending request cancelled", log.String("cancelled_request_id", id))
	rw.WriteHeader(http.StatusNoContent)
}

// respondCallError maps a failed outbound call to the gateway's error response.
func respondCallError(rw http.ResponseWriter, err error, logger log.FieldLogger) {
	var callErr *reqclient.Error
	if !errors.As(err, &callErr) {
		logger.Error("unexpected error of outbound call", log.Error(err))
		restapi.RespondInternalError(rw, ErrorDomain, logger)
		return
	}

	if callErr.Kind == reqclient.KindRequestFailed {
		var lastErr *reqclient.Error
		if errors.As(callErr.Cause, &lastErr) && lastErr.Kind == reqclient.KindTooManyRequests && lastErr.RetryAfter > 0 {
			restapi.RespondTooManyRequests(rw, lastErr.RetryAfter, "Upstream is throttling requests.", logger)
			return
		}
	}

	status, apiErr := callErrorToAPIError(callErr)
	apiErr.AddContext("kind", string(callErr.Kind))
	if callErr.Attempts > 0 {
		apiErr.AddContext("attempts", callErr.Attempts)
	}
	if callErr.Cause != nil {
		apiErr.AddDebug("cause", callErr.Cause.Error())
	}
	restapi.RespondError(rw, status, apiErr, logger)
}

func callErrorToAPIError(callErr *reqclient.Error) (int, *restapi.Error) {
	switch callErr.Kind {
	case reqclient.KindValidation:
		apiErr := restapi.NewError(ErrorDomain, restapi.ErrCodeUpstreamValidation,
			"Upstream response doesn't match the expected format.")
		var validationErr *schema.ValidationError
		if errors.As(callErr.Cause, &validationErr) {
			apiErr.AddContext("violations", validationErr.Violations)
		}
		return http.StatusBadGateway, apiErr
	case reqclient.KindOffline:
		return http.StatusServiceUnavailable,
			restapi.NewError(ErrorDomain, restapi.ErrCodeUpstreamOffline, "Upstream is not reachable.")
	case reqclient.KindCancelled:
		return StatusClientClosedRequest,
			restapi.NewError(ErrorDomain, restapi.ErrCodeRequestCancelled, "Request was cancelled.")
	case reqclient.KindDuplicateID:
		return http.StatusConflict,
			restapi.NewError(ErrorDomain, errCodeDuplicateID, "Request with the same id is already pending.").
				AddContext("id", callErr.RequestID)
	default:
		apiErr := restapi.NewError(ErrorDomain, restapi.ErrCodeUpstreamFailed, "Upstream request failed.")
		if callErr.StatusCode != 0 {
			apiErr.AddContext("upstreamStatus", callErr.StatusCode)
		}
		return http.StatusBadGateway, apiErr
	}
}
