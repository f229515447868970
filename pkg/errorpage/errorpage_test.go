package errorpage

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	dir := t.TempDir()
	page404 := filepath.Join(dir, "404.html")
	page50x := filepath.Join(dir, "50x.html")
	if err := os.WriteFile(page404, []byte("custom not found"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(page50x, []byte("custom server error"), 0o600); err != nil {
		t.Fatal(err)
	}
	uri := &url.URL{Path: "/index.html"}

	for _, tc := range []struct {
		name    string
		method  string
		status  int
		page404 string
		page50x string
		body    string
		err     bool
	}{
		{name: "builtin 401", method: http.MethodGet, status: http.StatusUnauthorized, page404: page404, page50x: page50x, body: "401 Unauthorized"},
		{name: "custom 404", method: http.MethodGet, status: http.StatusNotFound, page404: page404, body: "custom not found"},
		{name: "custom 500", method: http.MethodGet, status: http.StatusInternalServerError, page50x: page50x, body: "custom server error"},
		{name: "custom 503", method: http.MethodGet, status: http.StatusServiceUnavailable, page50x: page50x, body: "custom server error"},
		{name: "builtin 500", method: http.MethodGet, status: http.StatusInternalServerError, body: "500 Internal Server Error"},
		{name: "head has no body", method: http.MethodHead, status: http.StatusUnauthorized, body: ""},
		{name: "missing page", method: http.MethodGet, status: http.StatusInternalServerError, page50x: filepath.Join(dir, "missing.html"), err: true},
		{name: "unknown status", method: http.MethodGet, status: 999, err: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Default.Render(uri, tc.method, tc.status, tc.page404, tc.page50x)
			if tc.err {
				if !errors.Is(err, ErrRender) {
					t.Fatalf("expected render error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if res.StatusCode != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, res.StatusCode)
			}
			if tc.body == "" && len(res.Body) != 0 {
				t.Errorf("expected empty body, got %q", res.Body)
			}
			if !strings.Contains(string(res.Body), tc.body) {
				t.Errorf("expected body to contain %q, got %q", tc.body, res.Body)
			}
			if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Errorf("unexpected content type %q", ct)
			}
		})
	}
}

func TestResponseWriteTo(t *testing.T) {
	rec := httptest.NewRecorder()
	res := InternalServerError()

	if err := res.WriteTo(rec); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("unexpected content type %q", got)
	}
	if got := rec.Body.String(); got != "Internal Server Error\n" {
		t.Errorf("unexpected body %q", got)
	}
}
