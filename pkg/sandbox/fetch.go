package sandbox

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// newFetchClient builds the outbound HTTP client backing the fetch
// capability. Hardened defaults; plugins cannot alter transport settings.
func newFetchClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 5,
		},
	}
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0"

type fetchResult struct {
	status     int
	statusText string
	url        string
	headers    map[string]string
	body       []byte
}

// jsFetch implements the fetch(url, options) capability. It returns a
// Promise resolved on the handle's event loop with a response object
// exposing ok, status, statusText, url, headers, text() and json().
func (h *Handle) jsFetch(call goja.FunctionCall) goja.Value {
	h.vmMu.Lock()
	vm := h.vm
	h.vmMu.Unlock()

	rawURL := call.Argument(0).String()

	method := http.MethodGet
	headers := map[string]string{}
	body := ""
	if opt := call.Argument(1); !goja.IsUndefined(opt) && !goja.IsNull(opt) {
		o := opt.ToObject(vm)
		if v := o.Get("method"); v != nil && !goja.IsUndefined(v) {
			method = strings.ToUpper(v.String())
		}
		if v := o.Get("headers"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			if err := vm.ExportTo(v, &headers); err != nil {
				panic(vm.NewTypeError("fetch: invalid headers: %s", err.Error()))
			}
		}
		if v := o.Get("body"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			body = v.String()
		}
	}

	promise, resolve, reject := vm.NewPromise()
	ctx := h.currentCtx()

	go func() {
		res, err := h.env.doFetch(ctx, method, rawURL, headers, body)
		h.loop.RunOnLoop(func(vm *goja.Runtime) {
			if err != nil {
				reject(vm.NewGoError(err))
				return
			}
			resolve(responseObject(vm, res))
		})
	}()

	return vm.ToValue(promise)
}

func (e *Env) doFetch(ctx context.Context, method, rawURL string, headers map[string]string, body string) (*fetchResult, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, fmt.Errorf("fetch: only absolute http(s) URLs are allowed, got %q", rawURL)
	}

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "*/*")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody))
	if err != nil {
		return nil, fmt.Errorf("fetch: reading body: %w", err)
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[strings.ToLower(k)] = resp.Header.Get(k)
	}

	return &fetchResult{
		status:     resp.StatusCode,
		statusText: http.StatusText(resp.StatusCode),
		url:        resp.Request.URL.String(),
		headers:    respHeaders,
		body:       data,
	}, nil
}

func responseObject(vm *goja.Runtime, res *fetchResult) *goja.Object {
	obj := vm.NewObject()
	obj.Set("ok", res.status >= 200 && res.status < 300)
	obj.Set("status", res.status)
	obj.Set("statusText", res.statusText)
	obj.Set("url", res.url)
	obj.Set("headers", res.headers)
	// Body readers return promises like real fetch, so both
	// res.json().then(...) and await res.json() work.
	obj.Set("text", func(goja.FunctionCall) goja.Value {
		promise, resolve, _ := vm.NewPromise()
		resolve(string(res.body))
		return vm.ToValue(promise)
	})
	obj.Set("json", func(goja.FunctionCall) goja.Value {
		promise, resolve, reject := vm.NewPromise()
		var parsed any
		if err := json.Unmarshal(res.body, &parsed); err != nil {
			reject(vm.NewTypeError("fetch: response is not JSON: %s", err.Error()))
		} else {
			resolve(parsed)
		}
		return vm.ToValue(promise)
	})
	return obj
}

func jsAtob(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		data, err := base64.StdEncoding.DecodeString(call.Argument(0).String())
		if err != nil {
			panic(vm.NewTypeError("atob: invalid base64 input"))
		}
		return vm.ToValue(string(data))
	}
}

func jsBtoa(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(base64.StdEncoding.EncodeToString([]byte(call.Argument(0).String())))
	}
}
