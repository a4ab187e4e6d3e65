package pipeline

import (
	"github.com/go-chi/chi/v5/middleware"
)

// securityHeaders returns the stage that stamps the always-set response
// headers. HSTS is production-only: emitting it in development would pin
// localhost to HTTPS.
func securityHeaders(environment string) Stage {
	production := environment == "production"
	return Stage{
		Name: "security-headers",
		Run: func(rc *Ctx) *Rejection {
			h := rc.W.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if production {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			if reqID := middleware.GetReqID(rc.R.Context()); reqID != "" {
				h.Set("X-Request-ID", reqID)
			}
			return nil
		},
	}
}
