package authorize

import (
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/openshift/authgate/pkg/errorpage"
)

// DefaultRealm is announced in WWW-Authenticate when Options.Realm is empty.
const DefaultRealm = "Restricted"

// Options configures which requests are checked and how denials look.
type Options struct {
	// Group the authenticated user must belong to. Checking is disabled
	// when empty.
	Group string
	// Paths are the URL path prefixes that require authentication, matched
	// on whole segments of the cleaned request path. All paths do when empty.
	Paths []string
	Realm string

	Page404 string
	Page50x string
}

func (o Options) applies(req *http.Request) bool {
	if o.Group == "" {
		return false
	}
	if len(o.Paths) == 0 {
		return true
	}
	// Backends clean the path before use, so match on the cleaned path and
	// on whole segments only.
	cleaned := path.Clean("/" + req.URL.Path)
	for _, p := range o.Paths {
		prefix := strings.TrimSuffix(path.Clean("/"+p), "/")
		if prefix == "" || cleaned == prefix || strings.HasPrefix(cleaned, prefix+"/") {
			return true
		}
	}
	return false
}

// PreProcess decides whether req may continue down the pipeline. It returns
// nil when the request is allowed or not subject to checking, and the
// response to send otherwise: 401 when credentials are missing, malformed or
// the user is not in the group, 500 when the membership check itself failed.
func PreProcess(logger log.Logger, opts Options, checker MembershipChecker, renderer errorpage.Renderer, req *http.Request) *errorpage.Response {
	_, res := preProcess(logger, opts, checker, renderer, req)
	return res
}

func preProcess(logger log.Logger, opts Options, checker MembershipChecker, renderer errorpage.Renderer, req *http.Request) (string, *errorpage.Response) {
	if !opts.applies(req) {
		return "", nil
	}

	rb := &responseBuilder{logger: logger, opts: opts, renderer: renderer, req: req}

	user, _, ok := req.BasicAuth()
	if !ok || user == "" {
		level.Debug(logger).Log("msg", "missing or malformed basic credentials")
		return "", rb.unauthorized()
	}

	member, err := checker.IsMemberOfGroup(req.Context(), opts.Group, user)
	if err != nil {
		return "", rb.internalError("membership check failed", err)
	}
	if !member {
		level.Info(logger).Log("msg", "user is not a member of the required group", "user", user, "group", opts.Group)
		return "", rb.unauthorized()
	}

	level.Debug(logger).Log("msg", "authorized request", "user", user)
	return user, nil
}

type responseBuilder struct {
	logger   log.Logger
	opts     Options
	renderer errorpage.Renderer
	req      *http.Request
}

func (rb *responseBuilder) render(status int) *errorpage.Response {
	if rb.renderer == nil {
		rb.renderer = errorpage.Default
	}
	res, err := rb.renderer.Render(rb.req.URL, rb.req.Method, status, rb.opts.Page404, rb.opts.Page50x)
	if err != nil {
		level.Error(rb.logger).Log("msg", "failed to render error page", "status", status, "err", err)
		return errorpage.InternalServerError()
	}
	return res
}

func (rb *responseBuilder) unauthorized() *errorpage.Response {
	res := rb.render(http.StatusUnauthorized)
	if res.StatusCode == http.StatusUnauthorized {
		realm := rb.opts.Realm
		if realm == "" {
			realm = DefaultRealm
		}
		if res.Header == nil {
			res.Header = make(http.Header)
		}
		res.Header.Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", realm))
	}
	return res
}

func (rb *responseBuilder) internalError(reason string, err error) *errorpage.Response {
	level.Error(rb.logger).Log("msg", reason, "err", err)
	return rb.render(http.StatusInternalServerError)
}
