package middleware

import "net/http"

// GatewayVerifyHeader carries the shared key an upstream gateway injects.
const GatewayVerifyHeader = "X-Gateway-Verify"

// GatewayVerify builds middleware that rejects requests missing the
// expected X-Gateway-Verify header, so the coverage service only accepts
// traffic routed through its gateway rather than direct host access. An
// empty expectedKey disables the check (local/dev use), and /healthz
// always bypasses it for infrastructure health probes.
func GatewayVerify(expectedKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expectedKey == "" || r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get(GatewayVerifyHeader) != expectedKey {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
