package util

import (
	"net/url"
	"strings"
)

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "athcpid", "athpgid", "athznid"}

// NormalizeProfileURL canonicalizes a seller profile URL so the same seller
// always maps to the same enrichment key: https, lowercase host, no fragment,
// no tracking parameters, no trailing slash.
func NormalizeProfileURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", nil
	}
	if strings.HasPrefix(rawURL, "//") {
		rawURL = "https:" + rawURL
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, err
	}
	if parsedURL.Host == "" {
		return rawURL, nil
	}

	parsedURL.Scheme = "https"
	parsedURL.Host = strings.ToLower(parsedURL.Host)
	parsedURL.Fragment = ""
	if len(parsedURL.Path) > 1 && strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")
		parsedURL.RawPath = ""
	}
	queryParams := parsedURL.Query()
	for _, param := range trackingParams {
		queryParams.Del(param)
	}
	parsedURL.RawQuery = queryParams.Encode()
	return parsedURL.String(), nil
}

// SellerProfileURL builds the public profile URL for a seller id on domain.
func SellerProfileURL(domain, sellerID string) string {
	domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www.")
	if domain == "" || strings.TrimSpace(sellerID) == "" {
		return ""
	}
	return "https://www." + domain + "/seller/" + url.PathEscape(strings.TrimSpace(sellerID))
}
