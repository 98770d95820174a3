package client

import (
	"math/rand"
)

// UserAgentProvider supplies the User-Agent header for each request.
type UserAgentProvider interface {
	UserAgent() string
}

// FixedUserAgent sends the same identity on every request.
type FixedUserAgent string

// UserAgent implements UserAgentProvider.
func (f FixedUserAgent) UserAgent() string {
	return string(f)
}

// RandomUserAgent picks an identity from a pool for every request.
type RandomUserAgent []string

// UserAgent implements UserAgentProvider. An empty pool falls back to the
// first entry of DefaultUserAgents.
func (r RandomUserAgent) UserAgent() string {
	if len(r) == 0 {
		return DefaultUserAgents[0]
	}
	return r[rand.Intn(len(r))]
}

// DefaultUserAgents is the pool used by DefaultConfig.
var DefaultUserAgents = RandomUserAgent{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
}
