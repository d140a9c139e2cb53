// Package web serves the relay's status and log API.
package web

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"
)

// Options tune the HTTP API.
type Options struct {
	// StaleAfter is how long /healthz tolerates no forwarded message.
	// Zero disables the check.
	StaleAfter time.Duration
}

func Handler(status *Status, logs *LogBuffer, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, status.Snapshot(time.Now().UTC()))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()
		snap := status.Snapshot(now)
		resp := struct {
			OK      bool   `json:"ok"`
			Reason  string `json:"reason,omitempty"`
			LastAge string `json:"last_message_age,omitempty"`
		}{OK: true}

		if opts.StaleAfter > 0 {
			age, ok := snap.LastMessageAge(now)
			switch {
			case !ok && time.Duration(snap.UptimeSec)*time.Second > opts.StaleAfter:
				resp.OK, resp.Reason = false, "no message received"
			case ok && age > opts.StaleAfter:
				resp.OK, resp.Reason = false, "corrections stale"
			}
			if ok {
				resp.LastAge = age.Truncate(time.Millisecond).String()
			}
		}
		code := http.StatusOK
		if !resp.OK {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := status.Snapshot(time.Now().UTC())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>spartn-relay</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>spartn-relay</h1><p>mode=%s uptime=%ds</p>", html.EscapeString(snap.Mode), snap.UptimeSec)
		if snap.Relay != nil {
			_, _ = fmt.Fprintf(w, "<table><tr><th>message</th><th>count</th></tr>")
			for _, name := range snap.Relay.TypeNames() {
				_, _ = fmt.Fprintf(w, "<tr><td>%s</td><td>%d</td></tr>", html.EscapeString(name), snap.Relay.ByType[name])
			}
			_, _ = fmt.Fprintf(w, "</table>")
		}
		_, _ = fmt.Fprintf(w, "<p>See <a href=\"/api/status\">/api/status</a> and <a href=\"/api/logs?format=text\">/api/logs</a>.</p></body></html>")
	})

	return mux
}

func Serve(ctx context.Context, listenAddr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
