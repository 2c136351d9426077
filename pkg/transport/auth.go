package transport

import (
	"encoding/base64"
)

// basicAuth builds an HTTP Basic Authorization header value for the broker
// handshake.
func basicAuth(username, password string) string {
	credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + credentials
}
