package device

import "strings"

// NormalizeUUID converts a UUID string to the internal go-ble format
// (lowercase, no dashes). Accepts both dashed and already normalized forms.
func NormalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}

// ShortenUUID returns a truncated UUID for display: the first eight
// characters for long UUIDs, short UUIDs unchanged.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

// EqualAddr compares two BLE addresses, ignoring case and dash/colon
// separators. macOS reports UUID-style identifiers while Linux uses
// colon-separated MAC addresses; both normalize the same way.
func EqualAddr(a, b string) bool {
	return normalizeAddr(a) == normalizeAddr(b)
}

func normalizeAddr(addr string) string {
	addr = strings.ReplaceAll(addr, ":", "")
	return NormalizeUUID(addr)
}
