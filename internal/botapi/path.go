package botapi

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// Pattern matches /bot<token>/<method> at the start of a URL path. It is
// shared by the routing predicates and Parse so the two cannot diverge.
var Pattern = regexp.MustCompile(`(?i)^/bot(?P<bot_token>[^/]+)/(?P<api_method>[a-z]+)`)

var (
	tokenIndex  = Pattern.SubexpIndex("bot_token")
	methodIndex = Pattern.SubexpIndex("api_method")
)

// ErrPathMismatch is returned by Parse when the path is not a bot path.
var ErrPathMismatch = errors.New("path does not match /bot<token>/<method>")

// PathParams holds the values captured from a bot path.
type PathParams struct {
	BotToken  string
	APIMethod string
}

// Parse extracts the bot token and API method from path.
func Parse(path string) (PathParams, error) {
	m := Pattern.FindStringSubmatch(path)
	if m == nil {
		return PathParams{}, ErrPathMismatch
	}

	return PathParams{
		BotToken:  m[tokenIndex],
		APIMethod: m[methodIndex],
	}, nil
}

// UpstreamURL builds <base>/bot<token>/<method> with rawQuery passed through
// untouched. Only the scheme and host of base are used. params hold the
// escaped path segments, which are sent upstream in that same form.
func UpstreamURL(base *url.URL, params PathParams, rawQuery string) *url.URL {
	u := &url.URL{
		Scheme:   base.Scheme,
		Host:     base.Host,
		RawQuery: rawQuery,
	}

	rawPath := "/bot" + params.BotToken + "/" + params.APIMethod
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		u.Path = rawPath
		return u
	}

	u.Path = path
	if path != rawPath {
		u.RawPath = rawPath
	}
	return u
}

// MaskToken hides all but the bot id part of a token for logging.
// Bot tokens look like "<bot id>:<secret>".
func MaskToken(token string) string {
	if id, _, ok := strings.Cut(token, ":"); ok {
		return id + ":***"
	}
	if len(token) <= 4 {
		return "***"
	}
	return token[:4] + "***"
}

// RedactPath masks the token of a bot path so it can be logged. Other paths
// are returned unchanged.
func RedactPath(path string) string {
	loc := Pattern.FindStringSubmatchIndex(path)
	if loc == nil {
		return path
	}

	start, end := loc[2*tokenIndex], loc[2*tokenIndex+1]
	return path[:start] + MaskToken(path[start:end]) + path[end:]
}
