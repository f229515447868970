package authorize

import (
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/openshift/authgate/pkg/errorpage"
)

// NewHandler returns a handler that runs PreProcess on every request. Denied
// requests are answered directly; allowed ones are passed to next with the
// authenticated user stored in the request context.
func NewHandler(logger log.Logger, opts Options, checker MembershipChecker, renderer errorpage.Renderer, next http.Handler) http.Handler {
	logger = log.With(logger, "component", "authorize")

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		logger := log.With(logger, "request", middleware.GetReqID(req.Context()))

		user, res := preProcess(logger, opts, checker, renderer, req)
		if res != nil {
			if err := res.WriteTo(w); err != nil {
				level.Warn(logger).Log("msg", "failed to write response", "err", err)
			}
			return
		}

		if user != "" {
			req = req.WithContext(WithUser(req.Context(), user))
		}
		next.ServeHTTP(w, req)
	})
}
