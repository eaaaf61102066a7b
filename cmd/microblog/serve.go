package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"microblog-client/internal/handlers"
)

func (a *app) serve(ctx context.Context, args []string) error {
	fs := a.flagSet("serve")
	addr := fs.String("addr", defaultAddr(), "Address to listen on")
	templateDir := fs.String("templates", "web/templates", "Template directory")
	staticDir := fs.String("static", "web/static", "Static file directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	h := handlers.NewHandlers(*templateDir)
	ctrl, db, err := a.openSession(h)
	if err != nil {
		return err
	}
	defer db.Close()
	h.Bind(ctrl)

	// An invalid persisted token simply leaves the server on the login page.
	if err := ctrl.Start(ctx); err != nil {
		a.logger.Printf("Startup session check failed: %v", err)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           setupRouter(h, *staticDir, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Printf("Listening on %s (API %s)", *addr, a.apiURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// defaultAddr listens on the loopback interface only.
func defaultAddr() string {
	return "localhost:" + envOr("PORT", "8080")
}

// setupRouter returns the web UI's routes. Every state-changing request must
// come from the UI's own origin, since the server acts with the user's token.
func setupRouter(h *handlers.Handlers, staticDir string, logger *log.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("POST /logout", h.Logout)

	protected := func(fn http.HandlerFunc) http.Handler {
		return h.RequireSession(fn)
	}
	mux.Handle("GET /feed", protected(h.Feed))
	mux.Handle("GET /stats", protected(h.Statistics))
	mux.Handle("POST /posts", protected(h.CreatePost))
	mux.Handle("POST /posts/{id}/edit", protected(h.EditPost))
	mux.Handle("POST /posts/{id}/delete", protected(h.DeletePost))
	mux.Handle("POST /posts/{id}/like", protected(h.LikePost))
	mux.Handle("POST /posts/{id}/retweet", protected(h.RetweetPost))

	csrf := http.NewCrossOriginProtection()
	csrf.SetDenyHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Printf("Rejected cross-origin %s %s (Origin %q)", r.Method, r.URL.Path, r.Header.Get("Origin"))
		http.Error(w, "Cross-origin request rejected", http.StatusForbidden)
	}))
	return csrf.Handler(mux)
}
