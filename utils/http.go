// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by push delivery and anything else calling out.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
