package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/texpal/pkg/buildinfo"
	"github.com/matzehuels/texpal/pkg/errors"
	"github.com/matzehuels/texpal/pkg/palette"
)

func newTestServer(t *testing.T, load func(context.Context) (*palette.Session, error)) *httptest.Server {
	t.Helper()
	s := &reportServer{load: load, logger: log.New(io.Discard)}
	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	return ts
}

func emptySession(context.Context) (*palette.Session, error) {
	return palette.NewSession(palette.DefaultParams()), nil
}

func get(t *testing.T, url string) (int, string, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, resp.Header.Get("Content-Type"), string(body)
}

func TestServeRoutes(t *testing.T) {
	ts := newTestServer(t, emptySession)

	tests := []struct {
		path       string
		wantStatus int
		wantType   string
		wantBody   string
	}{
		{"/healthz", http.StatusOK, "text/plain", "ok"},
		{"/version", http.StatusOK, "application/json", buildinfo.Version},
		{"/report", http.StatusOK, "application/json", `"params"`},
		{"/report.yaml", http.StatusOK, "application/yaml", "page_w: 512"},
		{"/report.txt", http.StatusOK, "text/plain", "palette size: 512 512"},
		{"/stats", http.StatusOK, "application/json", `"groups"`},
		{"/groups.dot", http.StatusOK, "text/vnd.graphviz", "digraph groups"},
		{"/groups/nope", http.StatusNotFound, "text/plain", "nope"},
		{"/missing", http.StatusNotFound, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, ctype, body := get(t, ts.URL+tt.path)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", status, tt.wantStatus, body)
			}
			if !strings.HasPrefix(ctype, tt.wantType) {
				t.Errorf("content type = %q, want %q", ctype, tt.wantType)
			}
			if !strings.Contains(body, tt.wantBody) {
				t.Errorf("body lacks %q:\n%s", tt.wantBody, body)
			}
		})
	}
}

func TestServeReportJSON(t *testing.T) {
	ts := newTestServer(t, emptySession)
	_, _, body := get(t, ts.URL+"/report")

	var r struct {
		Params struct {
			PageW int `json:"page_w"`
		} `json:"params"`
	}
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		t.Fatal(err)
	}
	if r.Params.PageW != palette.DefaultPageSize {
		t.Errorf("page_w = %d, want %d", r.Params.PageW, palette.DefaultPageSize)
	}
}

func TestServeLoadError(t *testing.T) {
	ts := newTestServer(t, func(context.Context) (*palette.Session, error) {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "session version 9 is newer than this texpal")
	})
	status, _, body := get(t, ts.URL+"/report")
	if status != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", status)
	}
	if !strings.Contains(body, "newer") {
		t.Errorf("body = %q", body)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code errors.Code
		want int
	}{
		{errors.ErrCodeNotFound, http.StatusNotFound},
		{errors.ErrCodeLocked, http.StatusConflict},
		{errors.ErrCodeIO, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := httpStatus(errors.New(tt.code, "x")); got != tt.want {
				t.Errorf("httpStatus = %d, want %d", got, tt.want)
			}
		})
	}
}
