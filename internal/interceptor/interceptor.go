// Package interceptor wraps the transport the proxied client fetches through.
// JSON bodies are forwarded to the bridge as they pass; image bodies are held
// back until the bridge replies with a rewritten image or the wait times out.
package interceptor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ds124wfegd/tile-overlay/internal/entity"
	"github.com/ds124wfegd/tile-overlay/internal/pkg/messaging"
	"github.com/ds124wfegd/tile-overlay/internal/pkg/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultReplyTimeout = 10 * time.Second
	publishTimeout      = 5 * time.Second
)

var DefaultExcludedHosts = []string{"openfreemap", "maps"}

type Config struct {
	Source        string
	ExcludedHosts []string
	ReplyTimeout  time.Duration
	// Rewritable, when set, picks the image URLs worth waiting on. Others
	// pass through untouched.
	Rewritable func(*url.URL) bool
}

type Interceptor struct {
	base    http.RoundTripper
	events  messaging.Channel
	replies messaging.Channel
	cfg     Config
	metrics *metrics.Registry

	mu      sync.Mutex
	pending map[string]chan []byte
}

func New(base http.RoundTripper, events, replies messaging.Channel, cfg Config, reg *metrics.Registry) *Interceptor {
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = DefaultReplyTimeout
	}
	if cfg.ExcludedHosts == nil {
		cfg.ExcludedHosts = DefaultExcludedHosts
	}
	return &Interceptor{
		base:    base,
		events:  events,
		replies: replies,
		cfg:     cfg,
		metrics: reg,
		pending: make(map[string]chan []byte),
	}
}

// Listen resolves pending rewrites from the reply channel until ctx is done.
func (i *Interceptor) Listen(ctx context.Context) error {
	sub, err := i.replies.Subscribe(ctx)
	if err != nil {
		return err
	}
	logrus.Info("Interceptor listening for rewritten images")
	for env := range sub {
		i.resolve(env)
	}
	return ctx.Err()
}

// Pending is the number of image requests still waiting for a reply.
func (i *Interceptor) Pending() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.pending)
}

func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := i.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return resp, nil
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		return i.forwardJSON(req, resp)
	case strings.Contains(contentType, "image/") && i.rewritable(req.URL):
		return i.rewriteImage(req, resp)
	default:
		i.metrics.Inc(req.Context(), metrics.PassedThrough, nil)
		return resp, nil
	}
}

func (i *Interceptor) forwardJSON(req *http.Request, resp *http.Response) (*http.Response, error) {
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	endpoint := req.URL.String()
	if !json.Valid(body) {
		logrus.WithField("endpoint", endpoint).Error("Failed to parse JSON response")
		return resp, nil
	}
	i.metrics.Inc(req.Context(), metrics.InterceptedJSON, nil)

	env := entity.Envelope{
		Source:   i.cfg.Source,
		Endpoint: endpoint,
		JSONData: json.RawMessage(body),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := i.events.Publish(ctx, env); err != nil {
			logrus.WithField("endpoint", endpoint).Errorf("Failed to forward JSON: %v", err)
		}
	}()
	return resp, nil
}

func (i *Interceptor) rewriteImage(req *http.Request, resp *http.Response) (*http.Response, error) {
	original, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if len(original) == 0 {
		resp.Body = io.NopCloser(bytes.NewReader(original))
		i.metrics.Inc(req.Context(), metrics.PassedThrough, nil)
		return resp, nil
	}
	i.metrics.Inc(req.Context(), metrics.InterceptedImages, nil)

	id := uuid.NewString()
	done := make(chan []byte, 1)
	i.mu.Lock()
	i.pending[id] = done
	i.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"endpoint": req.URL.String(), "blob_id": id})
	ctx, cancel := context.WithTimeout(req.Context(), i.cfg.ReplyTimeout)
	defer cancel()

	body := original
	env := entity.Envelope{
		Source:   i.cfg.Source,
		Endpoint: req.URL.String(),
		BlobID:   id,
		BlobData: original,
		Blink:    time.Now().UnixMilli(),
	}
	if err := i.events.Publish(ctx, env); err != nil {
		i.forget(id)
		log.Errorf("Failed to forward image: %v", err)
	} else {
		select {
		case replacement := <-done:
			body = replacement
			i.metrics.Inc(req.Context(), metrics.Rewritten, nil)
		case <-ctx.Done():
			i.forget(id)
			i.metrics.Inc(req.Context(), metrics.RewriteTimeouts, nil)
			log.Warn("No rewritten image arrived in time, serving the original")
		}
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return resp, nil
}

func (i *Interceptor) resolve(env entity.Envelope) bool {
	if env.Source != entity.ReplySource(i.cfg.Source) || env.BlobID == "" || len(env.BlobData) == 0 {
		return false
	}
	i.mu.Lock()
	done, ok := i.pending[env.BlobID]
	delete(i.pending, env.BlobID)
	i.mu.Unlock()
	if !ok {
		return false
	}
	done <- env.BlobData
	return true
}

func (i *Interceptor) forget(id string) {
	i.mu.Lock()
	delete(i.pending, id)
	i.mu.Unlock()
}

func (i *Interceptor) rewritable(u *url.URL) bool {
	if i.excluded(u) {
		return false
	}
	return i.cfg.Rewritable == nil || i.cfg.Rewritable(u)
}

func (i *Interceptor) excluded(u *url.URL) bool {
	host := u.Hostname()
	for _, h := range i.cfg.ExcludedHosts {
		if h != "" && strings.Contains(host, h) {
			return true
		}
	}
	return false
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
