package browser

import (
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"github.com/ternarybob/usagedash/internal/models"
)

// ToCookieParams converts exported cookies into CDP cookie params.
// Expired cookies are skipped; session cookies get no expiry.
func ToCookieParams(cookies models.SessionCredential, now time.Time) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		var expires *cdp.TimeSinceEpoch
		if !c.IsSession() {
			sec := int64(c.Expires)
			nsec := int64((c.Expires - float64(sec)) * float64(time.Second))
			expiresAt := time.Unix(sec, nsec)
			if !expiresAt.After(now) {
				continue
			}
			ts := cdp.TimeSinceEpoch(expiresAt)
			expires = &ts
		}

		path := c.Path
		if path == "" {
			path = "/"
		}

		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   strings.TrimPrefix(c.Domain, "."),
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			Expires:  expires,
		}

		switch strings.ToLower(c.SameSite) {
		case "strict":
			param.SameSite = network.CookieSameSiteStrict
		case "lax":
			param.SameSite = network.CookieSameSiteLax
		case "none":
			param.SameSite = network.CookieSameSiteNone
		}

		params = append(params, param)
	}
	return params
}

// FromNetworkCookies converts the browser cookie jar back into the export layout
func FromNetworkCookies(cookies []*network.Cookie) models.SessionCredential {
	cred := make(models.SessionCredential, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		expires := c.Expires
		if c.Session {
			expires = -1
		}
		cred = append(cred, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return cred
}
