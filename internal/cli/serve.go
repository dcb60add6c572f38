package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/matzehuels/texpal/pkg/buildinfo"
	"github.com/matzehuels/texpal/pkg/errors"
	"github.com/matzehuels/texpal/pkg/observability"
	"github.com/matzehuels/texpal/pkg/palette"
	"github.com/matzehuels/texpal/pkg/report"
)

const (
	defaultServeAddr = "127.0.0.1:7823"
	shutdownTimeout  = 5 * time.Second
	requestTimeout   = 30 * time.Second
)

// serveCommand serves the session report over HTTP.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session report over HTTP",
		Long: `Serve exposes the saved session read-only: the report as JSON, YAML or text,
page statistics and the group graph as DOT or SVG. The session is read again
for every request, so a concurrent build shows up on the next reload.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := &reportServer{load: c.loadSession, logger: c.Logger}
			return srv.listenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultServeAddr, "listen address")

	return cmd
}

// =============================================================================
// reportServer
// =============================================================================

// reportServer answers report requests from the saved session.
type reportServer struct {
	load   func(ctx context.Context) (*palette.Session, error)
	logger *log.Logger
}

// routes returns the server's router.
func (s *reportServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, buildinfo.Get())
	})

	r.Get("/report", s.withReport(func(w http.ResponseWriter, _ *http.Request, rep *report.Report) error {
		writeJSON(w, rep)
		return nil
	}))
	r.Get("/report.yaml", s.withReport(func(w http.ResponseWriter, _ *http.Request, rep *report.Report) error {
		w.Header().Set("Content-Type", "application/yaml")
		return report.WriteYAML(w, rep)
	}))
	r.Get("/report.txt", s.withReport(func(w http.ResponseWriter, _ *http.Request, rep *report.Report) error {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		return report.WriteText(w, rep)
	}))
	r.Get("/stats", s.withReport(func(w http.ResponseWriter, _ *http.Request, rep *report.Report) error {
		writeJSON(w, rep.Stats)
		return nil
	}))
	r.Get("/groups/{name}", s.withReport(func(w http.ResponseWriter, req *http.Request, rep *report.Report) error {
		name := chi.URLParam(req, "name")
		for _, g := range rep.Groups {
			if g.Name == name {
				writeJSON(w, g)
				return nil
			}
		}
		return errors.New(errors.ErrCodeNotFound, "no palette group %q", name)
	}))
	r.Get("/groups.dot", s.withReport(func(w http.ResponseWriter, _ *http.Request, rep *report.Report) error {
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		_, err := w.Write([]byte(report.ToDOT(rep)))
		return err
	}))
	r.Get("/groups.svg", s.withReport(func(w http.ResponseWriter, req *http.Request, rep *report.Report) error {
		svg, err := report.RenderSVG(req.Context(), report.ToDOT(rep))
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "render group graph")
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		_, err = w.Write(svg)
		return err
	}))

	return r
}

// withReport loads the session for each request and hands its report to fn.
func (s *reportServer) withReport(fn func(http.ResponseWriter, *http.Request, *report.Report) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.load(r.Context())
		if err == nil {
			err = fn(w, r, report.New(sess, nil))
		}
		if err != nil {
			s.logger.Warn("request failed", "path", r.URL.Path, "err", err)
			http.Error(w, errors.UserMessage(err), httpStatus(err))
		}
	}
}

// observe logs each request and reports it to the HTTP hooks.
func (s *reportServer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		dur := time.Since(start)
		observability.HTTP().OnRequest(r.Context(), r.Method, r.URL.Path, status, dur)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", status,
			"dur", dur.Round(time.Microsecond), "id", middleware.GetReqID(r.Context()))
	})
}

// listenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *reportServer) listenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "listen on %s", addr)
	}
	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	printSuccess("Serving report on http://%s", ln.Addr())
	printDetail("Press Ctrl+C to stop")

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// httpStatus maps an error code to a response status.
func httpStatus(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidFormat, errors.ErrCodeInvalidConfig:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeLocked:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
