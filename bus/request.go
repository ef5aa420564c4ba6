package bus

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/c0deZ3R0/signsync/errors"
)

// Query is a typed request from one app to another.
type Query struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Param returns a string parameter, or "" when absent or not a string.
func (q Query) Param(key string) string {
	s, _ := q.Params[key].(string)
	return s
}

// Response is the reply to a Query. A non-empty Error marks a failure.
type Response struct {
	Data  any              `json:"data,omitempty"`
	Error string           `json:"error,omitempty"`
	Code  errors.ErrorCode `json:"code,omitempty"`
}

// OK reports whether the response carries no error.
func (r Response) OK() bool { return r.Error == "" }

// Err converts a failed response into a SyncError, or nil.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	code := r.Code
	if code == "" {
		code = errors.ErrCodeRequestFailure
	}
	return &errors.SyncError{
		Op:        errors.OpRequest,
		Component: "bus",
		Err:       stderrors.New(r.Error),
		Code:      code,
		Retryable: code == errors.ErrCodeTimeout,
	}
}

// Failure builds an error response.
func Failure(code errors.ErrorCode, format string, args ...any) Response {
	return Response{Error: fmt.Sprintf(format, args...), Code: code}
}

// UnknownQuery is the canonical reply for a query type the receiver does not handle.
func UnknownQuery(q Query) Response {
	return Response{Error: "Unknown query type", Code: errors.ErrCodeRequestFailure, Data: q.Type}
}

// SendRequest delivers q to toApp and returns its answer. It never panics
// and never blocks past the bus request timeout; every failure, including
// a timeout, comes back as a Response with Error set.
func (b *Bus) SendRequest(ctx context.Context, fromApp, toApp string, q Query) Response {
	b.mu.RLock()
	e, ok := b.apps[toApp]
	b.mu.RUnlock()
	if !ok {
		return b.failRequest(fromApp, toApp, q, Failure(errors.ErrCodeNotFound, "App %s not found", toApp))
	}
	handler, ok := e.app.(DataRequestHandler)
	if !ok {
		return b.failRequest(fromApp, toApp, q, Failure(errors.ErrCodeRequestFailure, "App %s does not handle data requests", toApp))
	}

	ctx, cancel := context.WithTimeout(ctx, b.requestTimeout)
	defer cancel()

	replies := make(chan Response, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				replies <- Failure(errors.ErrCodeRequestFailure, "App %s failed to answer %s: %v", toApp, q.Type, r)
			}
		}()
		replies <- handler.HandleDataRequest(ctx, fromApp, q)
	}()

	select {
	case resp := <-replies:
		if !resp.OK() {
			if resp.Code == "" {
				resp.Code = errors.ErrCodeRequestFailure
			}
			return b.failRequest(fromApp, toApp, q, resp)
		}
		return resp
	case <-ctx.Done():
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return b.failRequest(fromApp, toApp, q,
				Failure(errors.ErrCodeTimeout, "Request %s to %s timed out after %s", q.Type, toApp, b.requestTimeout))
		}
		return b.failRequest(fromApp, toApp, q,
			Failure(errors.ErrCodeRequestFailure, "Request %s to %s cancelled", q.Type, toApp))
	}
}

func (b *Bus) failRequest(fromApp, toApp string, q Query, resp Response) Response {
	b.logger.Warn("request failed",
		"from", fromApp, "to", toApp, "query", q.Type, "code", resp.Code, "error", resp.Error)
	return resp
}
