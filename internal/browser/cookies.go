package browser

import (
	"chat-bridge/pkg/apperr"
	"chat-bridge/pkg/jsmap"
	"encoding/json"
	"math"
	"net/url"
	"os"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// allowedCookies are the only names imported from a cookie export file.
var allowedCookies = map[string]struct{}{
	"smidV2":        {},
	"ds_session_id": {},
}

var sameSiteModes = map[string]*playwright.SameSiteAttribute{
	"lax":    playwright.SameSiteAttributeLax,
	"strict": playwright.SameSiteAttributeStrict,
	"none":   playwright.SameSiteAttributeNone,
}

// LoadCookieFile reads a browser-extension cookie export (a JSON array).
func LoadCookieFile(path string) ([]map[string]any, error) {
	const op = "LoadCookieFile"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInvalidArgument, err, map[string]any{
			apperr.MetaReason: "cookie_file_unreadable",
			apperr.MetaPath:   path,
		})
	}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInvalidArgument, err, map[string]any{
			apperr.MetaReason: "cookie_file_malformed",
			apperr.MetaPath:   path,
		})
	}

	return raw, nil
}

// NormalizeCookies turns exported cookies into playwright cookies. Entries
// without a name or value, or outside the allow-list, are dropped.
func NormalizeCookies(raw []map[string]any, baseURL string) []playwright.OptionalCookie {
	defaultDomain := hostOf(baseURL)
	out := make([]playwright.OptionalCookie, 0, len(raw))

	for _, c := range raw {
		cookie, ok := normalizeCookie(c, defaultDomain)
		if !ok {
			continue
		}

		if _, allowed := allowedCookies[cookie.Name]; !allowed {
			continue
		}

		out = append(out, cookie)
	}

	return out
}

func normalizeCookie(c map[string]any, defaultDomain string) (playwright.OptionalCookie, bool) {
	name, _ := c["name"].(string)
	value, _ := c["value"].(string)

	if name == "" || value == "" {
		return playwright.OptionalCookie{}, false
	}

	domain := jsmap.String(c, "domain")
	if domain == "" {
		domain = defaultDomain
	}

	path := jsmap.String(c, "path")
	if path == "" {
		path = "/"
	}

	cookie := playwright.OptionalCookie{
		Name:     name,
		Value:    value,
		Domain:   playwright.String(domain),
		Path:     playwright.String(path),
		HttpOnly: playwright.Bool(jsmap.Bool(c, "httpOnly")),
		Secure:   playwright.Bool(jsmap.Bool(c, "secure")),
	}

	if mode, ok := c["sameSite"].(string); ok {
		cookie.SameSite = sameSiteModes[strings.ToLower(mode)]
	}

	if !jsmap.Bool(c, "session") {
		if expires, ok := expiry(c); ok {
			cookie.Expires = playwright.Float(expires)
		}
	}

	return cookie, true
}

// expiry prefers "expires" over the extension's "expirationDate", truncated
// to whole seconds.
func expiry(c map[string]any) (float64, bool) {
	for _, key := range []string{"expires", "expirationDate"} {
		switch v := c[key].(type) {
		case float64:
			if v > 0 {
				return math.Trunc(v), true
			}
		case json.Number:
			if f, err := v.Float64(); err == nil && f > 0 {
				return math.Trunc(f), true
			}
		}
	}

	return 0, false
}

func hostOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return baseURL
	}

	return u.Hostname()
}
