// Package botapi knows the shape of Bot API request paths: the
// /bot<token>/<method> pattern, extraction of its parameters and the
// construction of the matching upstream URL.
package botapi
