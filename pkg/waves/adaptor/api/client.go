package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// client is a throttled HTTP client bound to the service URL.
type client struct {
	baseURL string
	query   map[string]string
	http    *http.Client
	limiter *rate.Limiter
}

func newClient(s settings) *client {
	p := s.base()
	timeout := time.Duration(p.TimeoutSeconds) * time.Second
	c := &client{
		baseURL: p.CompleteURL(),
		query:   s.query(),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
	}
	if p.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(p.RequestsPerSecond), 1)
	}
	return c
}

// statusError is returned for non 2xx answers.
type statusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.Code, e.Body)
}

func (c *client) url(parts ...string) string {
	u := c.baseURL
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	if len(c.query) == 0 {
		return u
	}
	q := url.Values{}
	for k, v := range c.query {
		q.Set(k, v)
	}
	return u + "?" + q.Encode()
}

func (c *client) do(ctx context.Context, method, target string, body io.Reader, contentType string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{Method: method, URL: strings.SplitN(target, "?", 2)[0], Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

func (c *client) getJSON(ctx context.Context, out interface{}, parts ...string) error {
	resp, err := c.do(ctx, http.MethodGet, c.url(parts...), nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// postForm sends fields and files as multipart/form-data and decodes the answer into out.
func (c *client) postForm(ctx context.Context, out interface{}, fields map[string]string, files map[string]string, parts ...string) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, fields, files))
	}()
	resp, err := c.do(ctx, http.MethodPost, c.url(parts...), pr, mw.FormDataContentType())
	if err != nil {
		pr.CloseWithError(err)
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func writeForm(mw *multipart.Writer, fields, files map[string]string) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	for name, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		w, err := mw.CreateFormFile(name, filepath.Base(path))
		if err == nil {
			_, err = io.Copy(w, f)
		}
		f.Close()
		if err != nil {
			return err
		}
	}
	return mw.Close()
}

func (c *client) delete(ctx context.Context, parts ...string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.url(parts...), nil, "")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// download writes the body of a GET into dst.
func (c *client) download(ctx context.Context, dst string, parts ...string) error {
	resp, err := c.do(ctx, http.MethodGet, c.url(parts...), nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o775); err != nil {
		return err
	}
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o664)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
