package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/scriptbox/cache"
	"github.com/caffeineduck/scriptbox/executor"
	"github.com/caffeineduck/scriptbox/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for script execution",
	Long: `Start an HTTP server that compiles and runs scripts on request.

Endpoints:
  POST   /execute   Execute a script, returns state, output and diagnostics
  GET    /cache     List cached artifacts
  GET    /health    Health check`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (0 uses the configured value)")
	serveCmd.Flags().Duration("timeout", 0, "Default execution timeout")
	serveCmd.Flags().String("base-dir", "", "Directory library references are loaded from")
	rootCmd.AddCommand(serveCmd)
}

type executeRequest struct {
	Code       string   `json:"code"`
	Lang       string   `json:"lang,omitempty"`
	FileName   string   `json:"file_name,omitempty"`
	References []string `json:"references,omitempty"`
	Namespaces []string `json:"namespaces,omitempty"`
	Args       []string `json:"args,omitempty"`
	Timeout    string   `json:"timeout,omitempty"`
}

// engineFactory builds the engine for a language name.
type engineFactory func(lang string) (*executor.Engine, io.Closer, error)

// server keeps one engine per language for its lifetime.
type server struct {
	defaultLang string
	timeout     time.Duration
	newEngine   engineFactory
	logger      zerolog.Logger

	mu      sync.Mutex
	engines map[string]*executor.Engine
	closers []io.Closer
}

func newServer(defaultLang string, timeout time.Duration, factory engineFactory, log zerolog.Logger) *server {
	return &server{
		defaultLang: defaultLang,
		timeout:     timeout,
		newEngine:   factory,
		logger:      log,
		engines:     make(map[string]*executor.Engine),
	}
}

func (s *server) engine(lang string) (*executor.Engine, error) {
	if lang == "" {
		lang = s.defaultLang
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.engines[lang]; ok {
		return e, nil
	}
	e, closer, err := s.newEngine(lang)
	if err != nil {
		return nil, err
	}
	s.engines[lang] = e
	s.closers = append(s.closers, closer)
	return e, nil
}

func (s *server) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.closers {
		_ = c.Close()
	}
	s.closers = nil
	s.engines = make(map[string]*executor.Engine)
}

func (s *server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/execute", s.handleExecute).Methods(http.MethodPost)
	r.HandleFunc("/cache", s.handleCache).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "code required", http.StatusBadRequest)
		return
	}

	engine, err := s.engine(req.Lang)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	timeout := s.timeout
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid timeout %q", req.Timeout), http.StatusBadRequest)
			return
		}
		timeout = d
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = contentName("request", req.Code, scriptExt(engine.Language()))
	}

	res, err := engine.Execute(ctx, executor.Request{
		Code:       req.Code,
		Args:       req.Args,
		References: req.References,
		Namespaces: req.Namespaces,
		FileName:   fileName,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("file", fileName).Msg("execute failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, newReport(res))
}

func (s *server) handleCache(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engine(r.URL.Query().Get("lang"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := engine.Store().List(engine.Language().ArtifactSuffix())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []cache.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	lang, _ := cmd.Flags().GetString("lang")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	baseDir, _ := cmd.Flags().GetString("base-dir")

	if port == 0 {
		port = cfg.Server.Port
	}
	if timeout == 0 {
		timeout = cfg.Engine.Timeout
	}
	if lang == "" {
		lang = "js"
	}
	if _, err := getLanguage(lang, ""); err != nil {
		return err
	}

	log := logger.Get()
	srv := newServer(lang, timeout, func(name string) (*executor.Engine, io.Closer, error) {
		language, err := getLanguage(name, "")
		if err != nil {
			return nil, nil, err
		}
		return newEngine(language, engineSettings{baseDir: baseDir})
	}, log)
	defer srv.close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	fmt.Fprintf(os.Stderr, "scriptbox server listening on %s\n", httpServer.Addr)
	log.Info().Int("port", port).Str("lang", lang).Msg("server started")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info().Msg("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
