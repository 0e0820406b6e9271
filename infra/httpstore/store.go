// Package httpstore reads and writes shared documents through a plain HTTP
// document API (GET and PUT on {base}/documents/{key}).
package httpstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kilianp07/runsheet/auth"
	"github.com/kilianp07/runsheet/core/docsync"
	"github.com/kilianp07/runsheet/core/factory"
	"github.com/kilianp07/runsheet/core/logger"
	infralogger "github.com/kilianp07/runsheet/infra/logger"
)

func init() {
	_ = docsync.RegisterStore("http", func(conf map[string]any) (docsync.DocumentStore, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return New(c)
	})
}

// Config describes the remote document API.
type Config struct {
	BaseURL      string        `json:"base_url"`
	PollInterval time.Duration `json:"poll_interval"`
	Timeout      time.Duration `json:"timeout"`
	Auth         auth.Conf     `json:"auth"`
}

// SetDefaults fills unset intervals.
func (c *Config) SetDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Store implements docsync.DocumentStore over HTTP.
type Store struct {
	base   *url.URL
	client *http.Client
	creds  *auth.ClientCred
	poll   time.Duration
	log    logger.Logger
}

// New validates cfg and returns a Store. Bearer tokens are attached when
// client credentials are configured.
func New(cfg Config) (*Store, error) {
	cfg.SetDefaults()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("httpstore: base_url is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("httpstore: invalid base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("httpstore: unsupported scheme %q", u.Scheme)
	}
	s := &Store{
		base:   u,
		client: &http.Client{Timeout: cfg.Timeout},
		poll:   cfg.PollInterval,
		log:    infralogger.New("httpstore"),
	}
	if cfg.Auth.Enabled() {
		s.creds = auth.NewClientCred(cfg.Auth)
	}
	return s, nil
}

func (s *Store) documentURL(key string) string {
	return s.base.String() + "/documents/" + url.PathEscape(key)
}

func (s *Store) newRequest(ctx context.Context, method, key string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.documentURL(key), rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.creds != nil {
		if err := s.creds.SetAuthHeader(req); err != nil {
			return nil, fmt.Errorf("failed to set auth header: %w", err)
		}
	}
	return req, nil
}

// fetch performs a conditional GET. A nil body with nil error means the
// document is unchanged since etag.
func (s *Store) fetch(ctx context.Context, key, etag string) ([]byte, string, error) {
	req, err := s.newRequest(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, "", err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		return nil, etag, nil
	case http.StatusNotFound:
		return nil, "", docsync.ErrNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, body)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) == 0 {
		return nil, "", docsync.ErrNotFound
	}
	return body, resp.Header.Get("ETag"), nil
}

// Read returns the current document under key.
func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	body, _, err := s.fetch(ctx, key, "")
	return body, err
}

// Upsert replaces the document under key.
func (s *Store) Upsert(ctx context.Context, key string, blob []byte) error {
	req, err := s.newRequest(ctx, http.MethodPut, key, blob)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Subscribe polls key and streams every document that differs from the one
// present when Subscribe was called. Servers without ETag support are
// compared by body.
func (s *Store) Subscribe(ctx context.Context, key string) (<-chan []byte, error) {
	last, etag, err := s.fetch(ctx, key, "")
	if err != nil && !errors.Is(err, docsync.ErrNotFound) {
		return nil, err
	}
	out := make(chan []byte, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			body, tag, err := s.fetch(ctx, key, etag)
			if err != nil {
				if !errors.Is(err, docsync.ErrNotFound) && ctx.Err() == nil {
					s.log.Warnf("poll %s: %v", key, err)
				}
				continue
			}
			if body == nil || bytes.Equal(body, last) {
				continue
			}
			last, etag = body, tag
			select {
			case out <- body:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
