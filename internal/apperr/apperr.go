// Package apperr turns the error taxonomy into what a user sees: one
// line of text, an HTTP status and a short machine-readable code.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/chii/internal/actor"
	"github.com/roach88/chii/internal/cascade"
	"github.com/roach88/chii/internal/config"
	"github.com/roach88/chii/internal/queryir"
	"github.com/roach88/chii/internal/remote"
	"github.com/roach88/chii/internal/store"
)

// Codes returned by Code.
const (
	CodeNotFound      = "not_found"
	CodeInvalid       = "invalid"
	CodeRemote        = "remote_rejected"
	CodeStoreFull     = "store_full"
	CodeUnavailable   = "unavailable"
	CodeInconsistent  = "inconsistent"
	CodeLocalApply    = "local_apply_failed"
	CodeCancelled     = "cancelled"
	CodeInternal      = "internal"
	CodeUnconfigured  = "invalid_config"
	CodeSubjectAbsent = "subject_not_cached"
)

type class struct {
	code   string
	status int
	msg    func(err error) string
}

func fixed(s string) func(error) string {
	return func(error) string { return s }
}

func detail(prefix string) func(error) string {
	return func(err error) string { return prefix + err.Error() }
}

func classify(err error) class {
	var se *remote.StatusError
	switch {
	case cascade.IsLocalApply(err):
		return class{CodeLocalApply, http.StatusInternalServerError,
			fixed("Saved on the server, but the local cache could not be updated. It will catch up on the next sync.")}
	case errors.Is(err, cascade.ErrSubjectNotFound):
		return class{CodeSubjectAbsent, http.StatusNotFound,
			fixed("Those episodes are not cached yet. Sync the subject and try again.")}
	case errors.Is(err, cascade.ErrPartialIDSet):
		return class{CodeInconsistent, http.StatusInternalServerError,
			fixed("The episode list failed a consistency check. Nothing was changed.")}
	case errors.As(err, &se):
		return class{CodeRemote, http.StatusBadGateway, func(error) string { return statusMessage(se.Status) }}
	case errors.Is(err, remote.ErrRemoteRejected):
		return class{CodeRemote, http.StatusBadGateway,
			fixed("Could not reach the server. Check your connection and try again.")}
	case errors.Is(err, store.ErrNotFound):
		return class{CodeNotFound, http.StatusNotFound, fixed("Not found in the local cache.")}
	case errors.Is(err, store.ErrStoreFull):
		return class{CodeStoreFull, http.StatusInsufficientStorage,
			fixed("The local cache is full. Free some disk space and try again.")}
	case errors.Is(err, config.ErrInvalidConfig):
		return class{CodeUnconfigured, http.StatusInternalServerError, detail("Invalid configuration: ")}
	case errors.Is(err, store.ErrInvalidKey),
		errors.Is(err, queryir.ErrInvalidQuery),
		errors.Is(err, cascade.ErrInvalidArgument):
		return class{CodeInvalid, http.StatusBadRequest, detail("Invalid request: ")}
	case errors.Is(err, actor.ErrStopped):
		return class{CodeUnavailable, http.StatusServiceUnavailable, fixed("The cache is shutting down.")}
	case errors.Is(err, context.DeadlineExceeded):
		return class{CodeCancelled, http.StatusGatewayTimeout, fixed("The operation timed out.")}
	case errors.Is(err, context.Canceled):
		return class{CodeCancelled, http.StatusServiceUnavailable, fixed("The operation was cancelled.")}
	}
	return class{CodeInternal, http.StatusInternalServerError, detail("Something went wrong: ")}
}

func statusMessage(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "The server rejected your credentials. Check your access token."
	case http.StatusNotFound:
		return "The server has no such item."
	case http.StatusTooManyRequests:
		return "The server is rate limiting requests. Wait a moment and try again."
	}
	if status >= 500 {
		return fmt.Sprintf("The server failed (status %d). Try again later.", status)
	}
	return fmt.Sprintf("The server rejected the request (status %d).", status)
}

// UserMessage returns one human-readable line for err, or "" for nil.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return classify(err).msg(err)
}

// HTTPStatus maps err to a response status. nil is 200.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return classify(err).status
}

// Code returns a short stable identifier for err's category.
func Code(err error) string {
	if err == nil {
		return ""
	}
	return classify(err).code
}
