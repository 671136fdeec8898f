package router

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

// Predicate reports whether a request satisfies one condition of a rule.
type Predicate func(r *http.Request) bool

type rule struct {
	predicates []Predicate
	handler    http.Handler
}

// Router selects a handler for each request by evaluating its rules in
// registration order. The first rule whose predicates all hold wins.
//
// Rules must be registered before the router starts serving requests.
type Router struct {
	rules []rule
}

// NotFoundResponse is the body written when no rule matches.
type NotFoundResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

const notFoundDescription = "No matching route found"

func New() *Router {
	return &Router{}
}

// Handle appends a rule. A rule without predicates matches every request.
func (rt *Router) Handle(handler http.Handler, predicates ...Predicate) *Router {
	rt.rules = append(rt.rules, rule{
		predicates: predicates,
		handler:    handler,
	})
	return rt
}

// Get registers handler for GET requests whose path fully matches pattern.
func (rt *Router) Get(pattern *regexp.Regexp, handler http.Handler) *Router {
	return rt.Handle(handler, Method(http.MethodGet), Path(pattern))
}

// Post registers handler for POST requests whose path fully matches pattern.
func (rt *Router) Post(pattern *regexp.Regexp, handler http.Handler) *Router {
	return rt.Handle(handler, Method(http.MethodPost), Path(pattern))
}

// All registers a catch-all rule.
func (rt *Router) All(handler http.Handler) *Router {
	return rt.Handle(handler)
}

// Len returns the number of registered rules.
func (rt *Router) Len() int {
	return len(rt.rules)
}

// Resolve returns the handler of the first rule whose predicates all hold.
func (rt *Router) Resolve(r *http.Request) (http.Handler, bool) {
	for _, ru := range rt.rules {
		if ru.matches(r) {
			return ru.handler, true
		}
	}

	return nil, false
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := rt.Resolve(r); ok {
		h.ServeHTTP(w, r)
		return
	}

	writeNotFound(w)
}

func (ru rule) matches(r *http.Request) bool {
	for _, p := range ru.predicates {
		if !p(r) {
			return false
		}
	}
	return true
}

// Method matches the request method case-insensitively.
func Method(name string) Predicate {
	return func(r *http.Request) bool {
		return strings.EqualFold(r.Method, name)
	}
}

// Path matches when the leftmost match of pattern covers the whole URL path.
// A pattern that only matches a prefix or an inner substring does not match.
// The path is matched in its escaped form, as received on the wire.
func Path(pattern *regexp.Regexp) Predicate {
	return func(r *http.Request) bool {
		path := r.URL.EscapedPath()
		loc := pattern.FindStringIndex(path)
		return loc != nil && loc[0] == 0 && loc[1] == len(path)
	}
}

func writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(NotFoundResponse{
		OK:          false,
		ErrorCode:   http.StatusNotFound,
		Description: notFoundDescription,
	})
}
