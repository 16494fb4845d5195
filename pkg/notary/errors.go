package notary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// APIError is a non-2xx response from the notary service.
type APIError struct {
	StatusCode int
	Errors     []ErrorItem `json:"errors"`
}

// ErrorItem is one entry of an error response body.
type ErrorItem struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	var details []string
	for _, item := range e.Errors {
		switch {
		case item.Detail != "":
			details = append(details, item.Detail)
		case item.Title != "":
			details = append(details, item.Title)
		}
	}
	prefix := fmt.Sprintf("notary service returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		prefix += " (check the API key, issuer ID and key ID)"
	case http.StatusTooManyRequests:
		prefix += " (rate limited)"
	}
	if len(details) == 0 {
		return prefix
	}
	return prefix + ": " + strings.Join(details, "; ")
}

// IsAuth reports whether err is an authentication or authorization failure.
func IsAuth(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// IsRateLimited reports whether err is a 429 response.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsTransient reports whether a request that failed with err may succeed
// when repeated: network failures, 5xx and 429.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	// Every failure of http.Client.Do is a *url.Error, which is itself a
	// net.Error; only its cause tells a network failure apart from, say, a
	// token that could not be minted.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		err = urlErr.Err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) || errors.Is(err, context.DeadlineExceeded)
}
