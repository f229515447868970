// Package errorpage renders the responses sent when a request is denied.
package errorpage

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// ErrRender is returned when an error page cannot be produced.
var ErrRender = errors.New("unable to render error page")

// Response is a complete response ready to be written to a client.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// WriteTo writes the response to w.
func (r *Response) WriteTo(w http.ResponseWriter) error {
	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.StatusCode)
	_, err := w.Write(r.Body)
	return err
}

// Renderer produces the response for status. page404 and page50x are paths
// to custom pages for 404 and 5xx statuses; empty means built-in.
type Renderer interface {
	Render(uri *url.URL, method string, status int, page404, page50x string) (*Response, error)
}

// RendererFunc adapts a function to a Renderer.
type RendererFunc func(uri *url.URL, method string, status int, page404, page50x string) (*Response, error)

func (f RendererFunc) Render(uri *url.URL, method string, status int, page404, page50x string) (*Response, error) {
	return f(uri, method, status, page404, page50x)
}

// Default renders custom pages from disk and a small HTML page otherwise.
var Default Renderer = RendererFunc(Render)

// Render is the default Renderer.
func Render(_ *url.URL, method string, status int, page404, page50x string) (*Response, error) {
	text := http.StatusText(status)
	if text == "" {
		return nil, errors.Wrapf(ErrRender, "unknown status code %d", status)
	}

	var (
		body []byte
		page string
	)
	switch {
	case status == http.StatusNotFound:
		page = page404
	case status >= 500 && status < 600:
		page = page50x
	}

	if page != "" {
		data, err := os.ReadFile(page)
		if err != nil {
			return nil, errors.Wrapf(ErrRender, "reading %s: %v", page, err)
		}
		body = data
	} else {
		body = []byte(fmt.Sprintf("<html><head><title>%d %s</title></head><body><center><h1>%d %s</h1></center></body></html>\n", status, text, status, text))
	}

	h := make(http.Header)
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(body)))

	if method == http.MethodHead {
		body = nil
	}

	return &Response{StatusCode: status, Header: h, Body: body}, nil
}

// InternalServerError is the response used when rendering itself failed.
func InternalServerError() *Response {
	body := []byte(http.StatusText(http.StatusInternalServerError) + "\n")
	h := make(http.Header)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	return &Response{StatusCode: http.StatusInternalServerError, Header: h, Body: body}
}
