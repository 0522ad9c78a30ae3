// Package request extracts reportable context from HTTP requests: a
// privacy-aware parameter filter, user resolution, and the middleware
// that turns panics into dispatched error reports.
package request

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// hiddenPattern matches parameter and header names whose values must not
// appear in reports.
var hiddenPattern = regexp.MustCompile(`(?i)api|token|key|secret|pass|signature|authorization|cookie`)

const cleansedSubstitute = "********"

// Filter produces privacy-safe representations of a request for
// inclusion in error reports.
type Filter struct{}

func NewFilter() *Filter { return &Filter{} }

// GetPostParameters returns the request's POST parameters with the
// values of sensitive keys replaced. Parsing is best-effort: a body that
// was already consumed simply yields whatever the form cache holds.
func (f *Filter) GetPostParameters(r *http.Request) url.Values {
	_ = r.ParseForm()
	out := url.Values{}
	for k, vs := range r.PostForm {
		if hiddenPattern.MatchString(k) {
			out[k] = []string{cleansedSubstitute}
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// GetRequestRepr renders a multi-line description of the request with
// sensitive parameters and headers redacted.
func (f *Filter) GetRequestRepr(r *http.Request) string {
	var b strings.Builder
	b.WriteString("Request info:\n")
	fmt.Fprintf(&b, "- method: %s\n", r.Method)
	fmt.Fprintf(&b, "- path: %s\n", r.URL.Path)
	fmt.Fprintf(&b, "- GET: %s\n", r.URL.Query().Encode())
	if r.Method == http.MethodPost {
		fmt.Fprintf(&b, "- POST: %s\n", f.GetPostParameters(r).Encode())
	}
	fmt.Fprintf(&b, "- REMOTE_ADDR: %q\n", orNone(r.RemoteAddr))
	fmt.Fprintf(&b, "- SERVER_NAME: %q\n", orNone(r.Host))
	b.WriteString("- headers:\n")

	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := strings.Join(r.Header[name], ", ")
		if hiddenPattern.MatchString(name) {
			v = cleansedSubstitute
		}
		fmt.Fprintf(&b, "    %s: %s\n", name, v)
	}
	return strings.TrimRight(b.String(), "\n")
}

func orNone(s string) string {
	if s == "" {
		return "(None)"
	}
	return s
}
