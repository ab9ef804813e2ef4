package command

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/chainsafe/mintwatch/internal/metrics"
	apperrors "github.com/chainsafe/mintwatch/pkg/app/errors"
)

// Router dispatches requests by command name.
type Router struct {
	handlers map[string]Handler
	logger   *zap.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{handlers: make(map[string]Handler), logger: logger}
}

// Register binds h to name. Middlewares run outermost first.
func (r *Router) Register(name string, h Handler, mws ...Middleware) {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	r.handlers[name] = NewLog(h, r.logger)
}

// Names lists registered commands.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the request and always produces a response. Errors become an
// ephemeral reply carrying only the user-safe message.
func (r *Router) Dispatch(ctx context.Context, req *Request) *Response {
	h, ok := r.handlers[req.Command]
	if !ok {
		metrics.Commands.WithLabelValues("unknown", "error").Inc()
		return Private("Unknown command.")
	}

	resp, err := h.Handle(ctx, req)
	if err != nil {
		metrics.Commands.WithLabelValues(req.Command, statusOf(err)).Inc()
		if apperrors.IsInternalError(err) {
			metrics.ErrorsTotal.WithLabelValues("command", req.Command).Inc()
		}
		return Private(apperrors.UserMessage(err))
	}

	metrics.Commands.WithLabelValues(req.Command, "ok").Inc()
	if resp == nil {
		return Private("Done.")
	}
	return resp
}

func statusOf(err error) string {
	switch {
	case apperrors.Is(err, apperrors.CategoryRateLimited):
		return "rate_limited"
	case apperrors.Is(err, apperrors.CategoryForbidden):
		return "forbidden"
	case apperrors.IsInternalError(err):
		return "error"
	default:
		return "rejected"
	}
}
