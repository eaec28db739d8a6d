package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

// Attribute keys whose values are credentials of the daemon or the worker.
var secretKeys = map[string]struct{}{
	"signer_key":    {},
	"private_key":   {},
	"passphrase":    {},
	"hmac_secret":   {},
	"authorization": {},
	"bearer_token":  {},
	"access_token":  {},
	"api_key":       {},
	"jwt":           {},
}

// Attribute keys holding URLs that may embed provider credentials.
var urlKeys = map[string]struct{}{
	"rpc_url":  {},
	"endpoint": {},
	"url":      {},
}

// Query parameters used by price APIs and RPC providers to carry keys.
var secretParams = []string{
	"x_cg_pro_api_key",
	"x_cg_demo_api_key",
	"apikey",
	"api_key",
	"key",
	"token",
	"access_token",
}

func normaliseKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsSecret reports whether values logged under key must be masked. Keys
// ending in _secret or _passphrase are secret as well.
func IsSecret(key string) bool {
	key = normaliseKey(key)
	if _, ok := secretKeys[key]; ok {
		return true
	}
	return strings.HasSuffix(key, "_secret") || strings.HasSuffix(key, "_passphrase")
}

// MaskValue masks non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds a string attribute, masking the value when key is secret.
func MaskField(key, value string) slog.Attr {
	if IsSecret(key) {
		return slog.String(key, MaskValue(value))
	}
	return slog.String(key, value)
}

// RedactURL strips credentials from an RPC or price API URL: the userinfo
// password, key-bearing query parameters and long hex path segments such as
// hosted node project ids. Unparseable input is masked entirely.
func RedactURL(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return RedactedValue
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), RedactedValue)
		}
	}
	if u.RawQuery != "" {
		query := u.Query()
		for _, param := range secretParams {
			for name := range query {
				if strings.EqualFold(name, param) {
					query.Set(name, RedactedValue)
				}
			}
		}
		u.RawQuery = query.Encode()
	}
	if u.Path != "" {
		segments := strings.Split(u.Path, "/")
		for i, segment := range segments {
			if len(segment) >= 32 && isHex(segment) {
				segments[i] = RedactedValue
			}
		}
		u.Path = strings.Join(segments, "/")
		u.RawPath = ""
	}
	redacted := u.String()
	// url.String escapes the brackets of the placeholder.
	redacted = strings.ReplaceAll(redacted, url.PathEscape(RedactedValue), RedactedValue)
	return strings.ReplaceAll(redacted, url.QueryEscape(RedactedValue), RedactedValue)
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// redactAttr is applied to every attribute the service loggers emit.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString {
		return attr
	}
	key := normaliseKey(attr.Key)
	if IsSecret(key) {
		return slog.String(attr.Key, MaskValue(attr.Value.String()))
	}
	if _, ok := urlKeys[key]; ok {
		return slog.String(attr.Key, RedactURL(attr.Value.String()))
	}
	return attr
}
