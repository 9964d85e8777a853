package utils

import (
	"context"
	"errors"
	"net"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrInvalidInput     = errors.New("invalid input")                         // Empty, malformed or email-like scan target
	ErrBlockedHost      = errors.New("blocked host")                          // Target fails the host safety gate
	ErrRateLimited      = errors.New("too many requests")                     // Client exceeded its scan quota
	ErrRetryFailed      = errors.New("request failed after all retries")      // Wraps the last underlying error
	ErrClientHTTPError  = errors.New("client HTTP error (4xx)")               // Wraps original error/status
	ErrServerHTTPError  = errors.New("server HTTP error (5xx)")               // Wraps original error/status
	ErrOtherHTTPError   = errors.New("other HTTP error (non-2xx)")            // Wraps original error/status
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	ErrParsing          = errors.New("parsing error")  // Wraps specific parsing error (HTML, URL, JSON)
	ErrDatabase         = errors.New("database error") // Wraps badger errors
	ErrNotFound         = errors.New("not found")      // Unknown scan or job ID
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrResponseBodyRead = errors.New("failed to read response body")
	ErrConfigValidation = errors.New("configuration validation error")
	ErrScanAborted      = errors.New("scan aborted")
	ErrHostBusy         = errors.New("no request slot free for host") // Per-host concurrency wait timed out
)

// CategorizeError maps an error to a predefined category string for logging/metrics.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return "Input_Invalid"
	case errors.Is(err, ErrBlockedHost):
		return "Input_BlockedHost"
	case errors.Is(err, ErrRateLimited):
		return "Input_RateLimited"
	case errors.Is(err, ErrRetryFailed):
		// The fetcher joins the sentinel and the last attempt's error with two %w verbs,
		// so the cause is matched on err itself rather than through errors.Unwrap.
		if errors.Is(err, ErrServerHTTPError) {
			return "RetryFailed_HTTPServer"
		}
		if errors.Is(err, ErrClientHTTPError) {
			return "RetryFailed_HTTPClient"
		}
		if cat := networkCategory(err); cat != "" {
			return "RetryFailed_" + cat
		}
		if err == ErrRetryFailed {
			return "RetryFailed_Unknown"
		}
		return "RetryFailed_NetworkOther"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		for _, code := range []string{"404", "403", "401", "410", "429"} {
			if strings.Contains(errMsg, " "+code+" ") || strings.HasSuffix(errMsg, " "+code) {
				return "HTTP_" + code
			}
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		if strings.Contains(errMsg, "JSON") {
			return "Content_ParsingJSON"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrNotFound):
		return "Lookup_NotFound"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	case errors.Is(err, ErrScanAborted):
		return "Scan_Aborted"
	case errors.Is(err, ErrHostBusy):
		return "Network_HostBusy"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	if cat := networkCategory(err); cat != "" {
		return "Network_" + cat
	}
	return "Unknown"
}

// networkCategory inspects transport-level failures. Returns "" when nothing matches.
func networkCategory(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Timeout"
	}

	// Use lowercase for reliable substring checks
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"), strings.Contains(lowerErrMsg, "deadline exceeded"):
		return "Timeout"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return "ConnectionRefused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return "DNSLookup"
	case strings.Contains(lowerErrMsg, "tls"), strings.Contains(lowerErrMsg, "certificate"):
		return "TLS"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return "ConnectionReset"
	case strings.Contains(lowerErrMsg, "broken pipe"):
		return "BrokenPipe"
	case strings.Contains(lowerErrMsg, "eof"):
		return "EOF"
	}
	return ""
}
