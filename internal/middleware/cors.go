package middleware

import "net/http"

// AnthropicVersion is the API version compatibility value stamped on every
// response so Anthropic SDK clients accept the proxy as a drop-in endpoint.
const AnthropicVersion = "2023-06-01"

const allowedHeaders = "content-type, x-api-key, anthropic-api-key, anthropic-version, proxy-token, x-or-model"

// NewCORSMiddleware stamps CORS and API-version headers on every response
// and terminates preflight requests with 204.
func NewCORSMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			SetCompatHeaders(w.Header())

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetCompatHeaders writes the CORS and version headers shared by every
// response the proxy produces.
func SetCompatHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", allowedHeaders)
	h.Set("Anthropic-Version", AnthropicVersion)
}
