package telemetry

import "regexp"

var (
	urlCredentialRegex = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^/\s:@]+(:[^/\s@]*)?@`)
	ipv4Regex          = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	homePathRegex      = regexp.MustCompile(`(/home/|/Users/|[A-Za-z]:\\Users\\)[^/\\\s]+`)
	deviceIDRegex      = regexp.MustCompile(`\{[0-9a-fA-F-]{36}\}(\.\{[0-9a-fA-F-]{36}\})?`)
)

// ScrubMessage removes credentials, IP addresses, user names in home paths
// and Windows endpoint IDs from a message before it leaves the machine.
func ScrubMessage(message string) string {
	message = urlCredentialRegex.ReplaceAllString(message, "${1}[redacted]@")
	message = ipv4Regex.ReplaceAllString(message, "[ip]")
	message = homePathRegex.ReplaceAllString(message, "${1}[user]")
	message = deviceIDRegex.ReplaceAllString(message, "{device-id}")
	return message
}
