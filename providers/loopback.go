package providers

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultCallbackPath = "/callback"

var _ Redirector = (*LoopbackRedirector)(nil)

// LoopbackRedirector receives the authorization response on a short-lived local
// HTTP listener. The provider's RedirectURL must point at Addr+Path.
type LoopbackRedirector struct {
	Addr string
	Path string
	// Open presents authURL to the user. Defaults to logging it.
	Open func(authURL string) error

	mu          sync.Mutex
	callbackURL string
}

func NewLoopbackRedirector(addr string) *LoopbackRedirector {
	return &LoopbackRedirector{Addr: addr, Path: DefaultCallbackPath}
}

// CallbackURL is the bound callback address, valid while Redirect is waiting.
func (l *LoopbackRedirector) CallbackURL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.callbackURL
}

func (l *LoopbackRedirector) Redirect(ctx context.Context, authURL string) (Result, error) {
	path := l.Path
	if path == "" {
		path = DefaultCallbackPath
	}
	listener, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return Result{}, errors.Wrap(err, "[LoopbackRedirector.Redirect] net.Listen")
	}

	results := make(chan Result, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		res := Result{
			Code:             r.FormValue("code"),
			State:            r.FormValue("state"),
			Error:            r.FormValue("error"),
			ErrorDescription: r.FormValue("error_description"),
		}
		if res.Error != "" {
			fmt.Fprintf(w, "Authorization failed: %s. You can close this window.", res.Error)
		} else {
			fmt.Fprint(w, "Signed in. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Err(err).Msg("loopback redirect listener")
		}
	}()

	l.mu.Lock()
	l.callbackURL = "http://" + listener.Addr().String() + path
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.callbackURL = ""
		l.mu.Unlock()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	open := l.Open
	if open == nil {
		open = func(u string) error {
			log.Info().Str("url", u).Msg("open this URL in a browser to continue")
			return nil
		}
	}
	if err := open(authURL); err != nil {
		return Result{}, errors.Wrap(err, "[LoopbackRedirector.Redirect] Open")
	}

	select {
	case res := <-results:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
