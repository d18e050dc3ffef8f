package trends

import "github.com/rotisserie/eris"

// ErrThrottled is returned when the service rejects a call for rate
// limiting (HTTP 429). Callers should back off before retrying.
var ErrThrottled = eris.New("trends: too many requests")

// ErrNotFound is returned when the service reports the request as
// not found or forbidden (HTTP 403/404). Retrying cannot succeed.
var ErrNotFound = eris.New("trends: not found or forbidden")
