package audit

import (
	"strings"

	"github.com/mssola/useragent"
)

// summarizeUserAgent turns a raw User-Agent header into "Browser Version / OS"
// for log lines. The raw header is what gets stored.
func summarizeUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot: " + name
	}
	name, version := ua.Browser()
	parts := make([]string, 0, 2)
	if name != "" {
		parts = append(parts, strings.TrimSpace(name+" "+majorVersion(version)))
	}
	if os := ua.OS(); os != "" {
		parts = append(parts, os)
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, " / ")
}

func majorVersion(v string) string {
	if i := strings.IndexByte(v, '.'); i > 0 {
		return v[:i]
	}
	return v
}
