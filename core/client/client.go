/*
Package client provides easy and fast in-process access to a REST api

Instead of marshalling HTTP, the client talks directly to the mux router.
It is perfectly suited for unit tests of the device's REST surface, and it
can also target a remote device over the network.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	ctx        context.Context

	defaultHeaders map[string]string
}

// NewWithRouter creates a client to make pseudo-REST requests to the device,
// through the mux router
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to a remote device
func NewWithURL(url string) Client {
	return Client{
		url:            url,
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	c.defaultHeaders[key] = value
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

func (c Client) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// RawGet gets the resource from path. Expects http.StatusOK as response,
// otherwise it will flag an error. Returns the actual http status code.
//
// The path can be extended with query strings.
//
// result can be map[string]interface{} or a raw *[]byte.
// result can be nil.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	r, _ := http.NewRequestWithContext(c.Context(), http.MethodGet, c.url+path, nil)
	return c.do(r, result)
}

// RawPost posts a resource to path. Expects http.StatusOK or
// http.StatusNoContent as response, otherwise it will flag an error. Returns
// the actual http status code.
//
// body can be a struct or map, or a raw []byte.
// result can be map[string]interface{} or a raw *[]byte.
// result can be nil.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	payload, ok := body.([]byte)
	if !ok {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, err
		}
	}
	r, _ := http.NewRequestWithContext(c.Context(), http.MethodPost, c.url+path, bytes.NewReader(payload))
	r.Header.Set("Content-Type", "application/json")
	return c.do(r, result)
}

func (c Client) do(r *http.Request, result interface{}) (int, error) {
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}

	var err error
	var res *http.Response
	var resBody []byte
	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res = rec.Result()
		resBody = rec.Body.Bytes()
	} else {
		res, err = c.httpClient.Do(r)
		if err != nil {
			return http.StatusInternalServerError, err
		}
		defer res.Body.Close()
		resBody, _ = io.ReadAll(res.Body)
	}
	status := res.StatusCode
	if status == http.StatusNoContent {
		return status, nil
	}
	if status != http.StatusOK {
		return status, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, http.StatusOK, strings.TrimSpace(string(resBody)))
	}

	if resBody != nil && result != nil {
		if raw, ok := result.(*[]byte); ok {
			*raw = resBody
		} else {
			err = json.Unmarshal(resBody, result)
		}
	}
	return status, err
}
