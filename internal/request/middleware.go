package request

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"errwatch/internal/report"
	logx "errwatch/pkg/logx"
)

// UserResolver associates an authenticated user with a request. An
// implementation that cannot identify anyone should return (nil, nil);
// resolution failures of any kind degrade to an anonymous report.
type UserResolver interface {
	ResolveUser(r *http.Request) (*report.User, error)
}

// UserResolverFunc adapts a function to the UserResolver interface.
type UserResolverFunc func(r *http.Request) (*report.User, error)

func (f UserResolverFunc) ResolveUser(r *http.Request) (*report.User, error) { return f(r) }

// Middleware recovers panics in the wrapped handler, dispatches an error
// report carrying the request and its user, and answers 500. The report
// path itself can't take the request down: the dispatcher swallows
// everything.
func Middleware(disp *report.Dispatcher, resolver UserResolver, log logx.Logger) func(http.Handler) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rv := recover()
				if rv == nil {
					return
				}
				stack := string(debug.Stack())
				rec := report.Record{
					Level:   "error",
					Message: fmt.Sprintf("panic serving %s %s: %v", r.Method, r.URL.Path, rv),
					Stack:   stack,
					Request: r,
					User:    resolveUser(resolver, r),
				}
				if err, ok := rv.(error); ok {
					rec.Err = err
				}
				disp.Report(r.Context(), rec)
				log.Warn("panic recovered in request",
					logx.String("method", r.Method),
					logx.String("path", r.URL.Path),
					logx.Any("panic", rv),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Error reports a handled (non-panic) error that occurred while serving
// r. No stack is attached: the error was caught, there is no traceback
// worth reproducing.
func Error(disp *report.Dispatcher, resolver UserResolver, err error, r *http.Request) {
	if err == nil {
		return
	}
	rec := report.Record{
		Level:   "error",
		Message: err.Error(),
		Err:     err,
		Request: r,
	}
	var ctx = r.Context()
	rec.User = resolveUser(resolver, r)
	disp.Report(ctx, rec)
}

// resolveUser is best-effort: nil resolver, resolver error or resolver
// panic all yield an anonymous report.
func resolveUser(resolver UserResolver, r *http.Request) (u *report.User) {
	defer func() {
		if recover() != nil {
			u = nil
		}
	}()
	if resolver == nil || r == nil {
		return nil
	}
	user, err := resolver.ResolveUser(r)
	if err != nil {
		return nil
	}
	return user
}
