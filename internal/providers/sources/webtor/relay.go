package webtor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"reelscout/internal/provider"
)

const shutdownTimeout = 5 * time.Second

// relay serves one remote file on a loopback port so players can reach it with
// range requests and permissive CORS headers.
type relay struct {
	srv *http.Server
	url string
}

// startRelay proxies requests for name to target on a random loopback port.
func startRelay(target *url.URL, name string, logger logrus.FieldLogger) (*relay, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listening for relay: %w", err)
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			out := *target
			pr.Out.URL = &out
			pr.Out.Host = target.Host
		},
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Set("Access-Control-Allow-Origin", "*")
			resp.Header.Set("Access-Control-Allow-Methods", "GET, HEAD")
			resp.Header.Set("Accept-Ranges", "bytes")
			if resp.Header.Get("Content-Type") == "" || resp.Header.Get("Content-Type") == "application/octet-stream" {
				resp.Header.Set("Content-Type", contentType(name))
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.WithError(err).Warn("relay upstream failed")
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		},
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rp.ServeHTTP(w, r)
	}))

	rl := &relay{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		url: "http://" + ln.Addr().String() + "/" + url.PathEscape(name),
	}
	go func() {
		if err := rl.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("relay stopped")
		}
	}()
	return rl, nil
}

// Release stops the relay.
func (r *relay) Release() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return r.srv.Shutdown(ctx)
}

var _ provider.Releaser = (*relay)(nil)

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	}
	return "video/mp4"
}
