package limiter

import "time"

// Category identifies a rate-limit bucket family. Every preset names exactly
// one category; the client key is derived per request.
type Category string

const (
	CategoryAuth            Category = "auth"
	CategoryCriticalAuth    Category = "critical-auth"
	CategoryAI              Category = "ai"
	CategorySearch          Category = "search"
	CategoryUpload          Category = "upload"
	CategoryStandardAPI     Category = "standard-api"
	CategoryReadOnly        Category = "read-only"
	CategoryAdmin           Category = "admin"
	CategoryPolling         Category = "polling"
	CategoryBrowserResource Category = "browser-resource"
)

// Policy is the window length, ceiling, and rejection message for a category.
type Policy struct {
	Limit   int
	Window  time.Duration
	Message string
}

// policies is the per-category quota table. Ceilings reflect the cost of the
// guarded operation: authentication and AI drafting are expensive and tightly
// bounded, polling and in-page resource loads are cheap and generous.
var policies = map[Category]Policy{
	CategoryAuth:            {Limit: 10, Window: time.Hour, Message: "too many authentication attempts, please try again later"},
	CategoryCriticalAuth:    {Limit: 5, Window: time.Hour, Message: "too many attempts for this operation, please try again later"},
	CategoryAI:              {Limit: 30, Window: time.Hour, Message: "AI drafting quota exceeded, please try again later"},
	CategorySearch:          {Limit: 60, Window: time.Hour, Message: "search quota exceeded, please try again later"},
	CategoryUpload:          {Limit: 40, Window: time.Hour, Message: "upload quota exceeded, please try again later"},
	CategoryStandardAPI:     {Limit: 100, Window: 15 * time.Minute, Message: "too many requests, please slow down"},
	CategoryReadOnly:        {Limit: 200, Window: 15 * time.Minute, Message: "too many requests, please slow down"},
	CategoryAdmin:           {Limit: 50, Window: 15 * time.Minute, Message: "administrative request limit exceeded; repeated violations are logged"},
	CategoryPolling:         {Limit: 600, Window: 15 * time.Minute, Message: "polling too frequently, please back off"},
	CategoryBrowserResource: {Limit: 1000, Window: 15 * time.Minute, Message: "too many resource requests, please slow down"},
}

// PolicyFor returns the quota policy for a category. Unknown categories fall
// back to the standard API policy.
func PolicyFor(category Category) Policy {
	if p, ok := policies[category]; ok {
		return p
	}
	return policies[CategoryStandardAPI]
}
