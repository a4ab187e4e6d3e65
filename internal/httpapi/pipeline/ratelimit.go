package pipeline

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/otherjamesbrown/caseflow-api/internal/limiter"
	"github.com/otherjamesbrown/caseflow-api/internal/metrics"
)

// rateLimit returns the quota stage for a category. The client key is the
// first X-Forwarded-For entry, else the socket address. Limiter backend
// failures fail open: quota enforcement degrading must not take the API down.
func (d Deps) rateLimit(category limiter.Category) Stage {
	policy := limiter.PolicyFor(category)
	return Stage{
		Name: "rate-limit",
		Run: func(rc *Ctx) *Rejection {
			if d.Config.RateLimitDisabled || d.Limiter == nil {
				return nil
			}

			key := fmt.Sprintf("%s:%s", category, ClientIP(rc.R))
			decision, err := d.Limiter.Allow(rc.R.Context(), key, policy.Limit, policy.Window)
			if err != nil {
				d.Logger.Warn().Err(err).Str("category", string(category)).
					Msg("rate limiter unavailable, failing open")
				return nil
			}

			h := rc.W.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if decision.Allowed {
				return nil
			}

			h.Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())+1))
			metrics.RecordRateLimited(string(category))
			return &Rejection{
				Status:  http.StatusTooManyRequests,
				Code:    CodeRateLimited,
				Message: policy.Message,
			}
		},
	}
}
