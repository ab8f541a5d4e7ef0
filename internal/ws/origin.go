package ws

import "net/http"

// CheckOrigin builds an upgrader origin check from the configured allow
// list. A single "*" entry allows any origin; requests without an Origin
// header (non-browser clients) are always allowed.
func CheckOrigin(allowed []string) func(*http.Request) bool {
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
