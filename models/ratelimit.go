package models

// RateLimitInfo is the rate-limit metadata attached to responses and
// returned by the limits endpoint. Reset is epoch seconds at which the
// current window ends.
type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Current   int   `json:"current"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}
