package auth

import "errors"

var (
	// ErrNoCredential means no API key was presented on the request
	ErrNoCredential = errors.New("no credential presented")

	// ErrMalformedKey means the presented key fails the format check
	// (wrong prefix or length); rejected before any store lookup
	ErrMalformedKey = errors.New("malformed API key")

	// ErrKeyNotFound means no credential matches the presented key's hash
	ErrKeyNotFound = errors.New("API key not found")

	// ErrKeyRevoked means the key hash matched but the credential is
	// inactive or expired
	ErrKeyRevoked = errors.New("API key inactive or expired")

	// ErrForbidden means the credential is valid but its tier does not
	// grant the required permission
	ErrForbidden = errors.New("insufficient permission tier")
)
