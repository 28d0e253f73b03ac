package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// originPolicy answers whether a browser origin may call the API.
type originPolicy struct {
	any     bool
	origins map[string]bool
}

func newOriginPolicy(allowed []string) originPolicy {
	p := originPolicy{origins: make(map[string]bool, len(allowed))}
	for _, o := range allowed {
		if o == "*" {
			p.any = true
			continue
		}
		p.origins[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	return p.any || p.origins[strings.ToLower(origin)]
}

// checkOrigin is the websocket handshake check. Non-browser clients send no
// Origin and are let through; the token still has to verify.
func (p originPolicy) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || p.allows(origin)
}

// corsHandler wraps the whole router so preflights are answered before route
// method matching.
func (p originPolicy) corsHandler(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool { return p.allows(origin) },
		AllowedMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:  []string{"Authorization", "Content-Type", "X-Auth-Token", "X-Request-ID"},
		ExposedHeaders:  []string{"X-Request-ID", "Retry-After"},
		MaxAge:          86400,
	})(next)
}
