// Package router implements a small ordered-rule request router.
//
// Each rule pairs a list of predicates with an http.Handler. Rules are
// evaluated in the order they were registered and the first rule whose
// predicates all return true serves the request. When nothing matches the
// router answers with a Bot API style JSON 404:
//
//	{"ok":false,"error_code":404,"description":"No matching route found"}
//
// Usage:
//
//	rt := router.New().
//		Get(botapi.Pattern, proxy).
//		Post(botapi.Pattern, proxy)
//	http.ListenAndServe(":8080", rt)
package router
