package report

import (
	"context"
	"sync"
	"time"

	logx "errwatch/pkg/logx"
)

// Handler delivers one formatted report to one channel. Emit must not
// panic past the dispatcher and must do its own fallback handling; the
// returned error is for accounting only and is never re-raised.
type Handler interface {
	Emit(ctx context.Context, rec Record) error
}

// Outcome describes the result of one handler invocation, for the
// optional observer (report history, metrics).
type Outcome struct {
	Handler string
	Subject string
	At      time.Time
	Err     error
}

type namedHandler struct {
	name string
	h    Handler
}

// Dispatcher fans a record out to every registered handler. Handlers run
// synchronously, in registration order, and independently: one handler
// failing or panicking never stops the others.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []namedHandler
	observer func(context.Context, Outcome)

	log  logx.Logger
	host string
}

func NewDispatcher(host string, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{log: log, host: host}
}

func (d *Dispatcher) Register(name string, h Handler) {
	if h == nil {
		return
	}
	d.mu.Lock()
	d.handlers = append(d.handlers, namedHandler{name: name, h: h})
	d.mu.Unlock()
}

// SetObserver installs a hook called after each handler invocation.
// Observer failures are swallowed like everything else on this path.
func (d *Dispatcher) SetObserver(fn func(context.Context, Outcome)) {
	d.mu.Lock()
	d.observer = fn
	d.mu.Unlock()
}

// Report dispatches rec to all handlers. It never panics and never
// returns an error: error reporting must not crash the request path that
// triggered it.
func (d *Dispatcher) Report(ctx context.Context, rec Record) {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	if rec.Host == "" {
		rec.Host = d.host
	}

	d.mu.RLock()
	handlers := d.handlers
	observer := d.observer
	d.mu.RUnlock()

	subjectRaw, _, _ := FormatRecord(rec)
	subject := FormatSubject(subjectRaw)

	for _, nh := range handlers {
		err := d.emitOne(ctx, nh, rec)
		if observer != nil {
			d.observe(ctx, observer, Outcome{Handler: nh.name, Subject: subject, At: time.Now(), Err: err})
		}
	}
}

func (d *Dispatcher) emitOne(ctx context.Context, nh namedHandler, rec Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// Warn, not error: error-level output feeds back into this
			// pipeline and would recurse.
			d.log.Warn("report handler panicked",
				logx.String("handler", nh.name),
				logx.Any("panic", r),
			)
			err = panicError{value: r}
		}
	}()
	return nh.h.Emit(ctx, rec)
}

func (d *Dispatcher) observe(ctx context.Context, fn func(context.Context, Outcome), out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn("report observer panicked", logx.Any("panic", r))
		}
	}()
	fn(ctx, out)
}

type panicError struct{ value any }

func (e panicError) Error() string { return "handler panic" }
