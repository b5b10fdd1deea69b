// Package sandbox executes third-party provider plugins, supplied as
// JavaScript source text, inside an isolated goja runtime. A plugin can only
// reach the host through the fixed capability table set up at load time:
// fetch, cheerio-style HTML traversal, hashing, JSON, timers and a console
// routed through the host logger tagged with the provider id. There are no
// filesystem, environment or process bindings in the runtime.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/dop251/goja_nodejs/url"

	"streamplex/pkg/logger"
	"streamplex/pkg/provider"
)

var (
	// ErrTimeout is returned when a plugin exceeds its wall-clock bound,
	// at load time or during an invocation.
	ErrTimeout = errors.New("provider timeout")

	// ErrInvalidPlugin is returned by Load when the evaluated module does
	// not expose a getStreams callable of the expected shape.
	ErrInvalidPlugin = errors.New("invalid plugin: no getStreams export")

	// ErrMalformedResult is returned when a plugin resolves to something
	// other than an array of stream records.
	ErrMalformedResult = errors.New("provider returned a non-list result")
)

// Env holds the shared resources handles are created from: the outbound HTTP
// client backing the fetch capability and the execution bound applied to
// plugin loads and invocations.
type Env struct {
	client  *http.Client
	timeout time.Duration
	maxBody int64
}

// NewEnv creates a sandbox environment with the given execution bound.
func NewEnv(timeout time.Duration) *Env {
	return &Env{
		client:  newFetchClient(),
		timeout: timeout,
		maxBody: 10 << 20,
	}
}

// Timeout returns the wall-clock bound applied to every plugin invocation.
func (e *Env) Timeout() time.Duration {
	return e.timeout
}

// Handle is an owned, executable binding to one provider's loaded plugin.
// It is usable only for the provider id it was created for; each handle has
// its own runtime, event loop and module registry so plugins cannot observe
// one another's state.
type Handle struct {
	providerID string
	env        *Env
	loop       *eventloop.EventLoop

	vmMu sync.Mutex
	vm   *goja.Runtime

	fn goja.Callable

	// callMu serializes invocations: the handle owns one event loop, so a
	// second caller must wait rather than clobber the in-flight context or
	// interrupt the runtime out from under its sibling.
	callMu sync.Mutex

	ctxMu   sync.Mutex
	callCtx context.Context // context of the in-flight invocation

	broken    atomic.Bool
	closeOnce sync.Once
}

// Load compiles and evaluates src inside a fresh sandbox and validates that
// it exports a getStreams function. Evaluation is bounded by the environment
// timeout; a module that fails validation or evaluation yields
// ErrInvalidPlugin.
func (e *Env) Load(src, providerID string) (*Handle, error) {
	prog, err := goja.Compile("provider-"+providerID+".js", src, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlugin, err)
	}

	h := &Handle{providerID: providerID, env: e, callCtx: context.Background()}

	registry := require.NewRegistry(require.WithLoader(h.missingModule))
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&providerPrinter{id: providerID}))
	registry.RegisterNativeModule("cheerio", cheerioModule())
	registry.RegisterNativeModule("cheerio-without-node-native", cheerioModule())
	registry.RegisterNativeModule("crypto", cryptoModule())
	registry.RegisterNativeModule("crypto-js", cryptoModule())

	h.loop = eventloop.NewEventLoop(eventloop.WithRegistry(registry))
	h.loop.Start()

	done := make(chan error, 1)
	h.loop.RunOnLoop(func(vm *goja.Runtime) {
		h.vmMu.Lock()
		h.vm = vm
		h.vmMu.Unlock()

		vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
		h.setupGlobals(vm)

		moduleObj := vm.NewObject()
		exportsObj := vm.NewObject()
		moduleObj.Set("exports", exportsObj)
		vm.Set("module", moduleObj)
		vm.Set("exports", exportsObj)

		if _, err := vm.RunProgram(prog); err != nil {
			done <- fmt.Errorf("%w: %v", ErrInvalidPlugin, normalizeJSError(err))
			return
		}

		exported := moduleObj.Get("exports")
		if exported == nil || goja.IsUndefined(exported) || goja.IsNull(exported) {
			done <- ErrInvalidPlugin
			return
		}
		fn, ok := goja.AssertFunction(exported.ToObject(vm).Get("getStreams"))
		if !ok {
			done <- ErrInvalidPlugin
			return
		}
		h.fn = fn
		done <- nil
	})

	select {
	case err := <-done:
		if err != nil {
			h.Close()
			return nil, err
		}
	case <-time.After(e.timeout):
		h.broken.Store(true)
		h.interrupt()
		h.Close()
		return nil, ErrTimeout
	}

	return h, nil
}

// GetStreams invokes the plugin's getStreams export. The call is bounded by
// ctx; on expiry the runtime is interrupted so the underlying work is
// abandoned, and the handle reports itself broken so the loader rebuilds it.
func (h *Handle) GetStreams(ctx context.Context, tmdbID string, kind provider.MediaKind, season, episode int) ([]provider.Stream, error) {
	h.callMu.Lock()
	defer h.callMu.Unlock()

	if h.broken.Load() {
		return nil, fmt.Errorf("plugin handle for %s is no longer usable", h.providerID)
	}

	h.setCallCtx(ctx)
	defer h.setCallCtx(context.Background())

	ch := make(chan outcome, 1)
	h.loop.RunOnLoop(func(vm *goja.Runtime) {
		args := []goja.Value{vm.ToValue(tmdbID), vm.ToValue(kind.External())}
		if season > 0 || episode > 0 {
			args = append(args, vm.ToValue(season), vm.ToValue(episode))
		}
		v, err := h.fn(goja.Undefined(), args...)
		if err != nil {
			ch <- outcome{err: normalizeJSError(err)}
			return
		}
		h.settle(vm, v, ch)
	})

	select {
	case out := <-ch:
		return out.streams, out.err
	case <-ctx.Done():
		h.broken.Store(true)
		h.interrupt()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// Broken reports whether the handle has been poisoned by an interrupt and
// must be discarded.
func (h *Handle) Broken() bool {
	return h.broken.Load()
}

// ProviderID returns the id of the provider this handle was created for.
func (h *Handle) ProviderID() string {
	return h.providerID
}

// Close stops the handle's event loop. The handle must not be used afterwards.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.loop.StopNoWait()
	})
}

func (h *Handle) interrupt() {
	h.vmMu.Lock()
	vm := h.vm
	h.vmMu.Unlock()
	if vm != nil {
		vm.Interrupt(ErrTimeout)
	}
}

func (h *Handle) setCallCtx(ctx context.Context) {
	h.ctxMu.Lock()
	h.callCtx = ctx
	h.ctxMu.Unlock()
}

func (h *Handle) currentCtx() context.Context {
	h.ctxMu.Lock()
	defer h.ctxMu.Unlock()
	if h.callCtx != nil {
		return h.callCtx
	}
	return context.Background()
}

type outcome struct {
	streams []provider.Stream
	err     error
}

// settle resolves v to a stream list, awaiting it first when it is a
// thenable. Exactly one outcome is sent to ch.
func (h *Handle) settle(vm *goja.Runtime, v goja.Value, ch chan<- outcome) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		ch <- outcome{err: ErrMalformedResult}
		return
	}

	obj := v.ToObject(vm)
	then, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		ch <- h.convert(vm, v)
		return
	}

	onFulfilled := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		ch <- h.convert(vm, call.Argument(0))
		return goja.Undefined()
	})
	onRejected := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		ch <- outcome{err: fmt.Errorf("provider %s rejected: %s", h.providerID, call.Argument(0).String())}
		return goja.Undefined()
	})
	if _, err := then(obj, onFulfilled, onRejected); err != nil {
		ch <- outcome{err: normalizeJSError(err)}
	}
}

// pluginStream mirrors the record shape plugins return. Size is loosely typed
// because plugins variously return strings and numbers.
type pluginStream struct {
	Name    string            `json:"name"`
	Title   string            `json:"title"`
	URL     string            `json:"url"`
	Quality string            `json:"quality"`
	Size    any               `json:"size"`
	Headers map[string]string `json:"headers"`
}

func (h *Handle) convert(vm *goja.Runtime, v goja.Value) outcome {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return outcome{err: ErrMalformedResult}
	}
	if v.ToObject(vm).ClassName() != "Array" {
		return outcome{err: ErrMalformedResult}
	}

	var raw []pluginStream
	if err := vm.ExportTo(v, &raw); err != nil {
		return outcome{err: fmt.Errorf("%w: %v", ErrMalformedResult, err)}
	}

	streams := make([]provider.Stream, 0, len(raw))
	for _, r := range raw {
		s := provider.Stream{
			Name:     r.Name,
			Title:    r.Title,
			URL:      r.URL,
			Quality:  r.Quality,
			Provider: h.providerID,
			Headers:  r.Headers,
		}
		if r.Size != nil {
			s.Size = fmt.Sprintf("%v", r.Size)
		}
		streams = append(streams, s)
	}
	return outcome{streams: streams}
}

// missingModule is the require fallback for modules outside the capability
// table: a warning plus an empty export, so plugins degrade instead of
// throwing at load.
func (h *Handle) missingModule(path string) ([]byte, error) {
	logger.Warn("Plugin requested unavailable module", "provider", h.providerID, "module", path)
	return []byte("module.exports = {};"), nil
}

func (h *Handle) setupGlobals(vm *goja.Runtime) {
	url.Enable(vm)
	vm.Set("fetch", h.jsFetch)
	vm.Set("atob", jsAtob(vm))
	vm.Set("btoa", jsBtoa(vm))
}

// normalizeJSError maps a goja interrupt to ErrTimeout and keeps everything
// else as an opaque evaluation error.
func normalizeJSError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return ErrTimeout
	}
	return err
}

// providerPrinter routes sandbox console output through the host logger,
// tagged with the owning provider id.
type providerPrinter struct {
	id string
}

func (p *providerPrinter) Log(s string) {
	logger.Info("plugin console", "provider", p.id, "msg", s)
}

func (p *providerPrinter) Warn(s string) {
	logger.Warn("plugin console", "provider", p.id, "msg", s)
}

func (p *providerPrinter) Error(s string) {
	logger.Error("plugin console", "provider", p.id, "msg", s)
}
