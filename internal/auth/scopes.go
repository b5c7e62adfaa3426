package auth

// Known OAuth scopes used by the staff read API.
const (
	ScopeTimeclockRead  = "timeclock:read"
	ScopeTimeclockWrite = "timeclock:write"
)
