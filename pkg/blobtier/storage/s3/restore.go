package s3

import (
	"fmt"
	"strings"
	"time"

	"github.com/tendant/blobtier/pkg/blobtier"
)

// ParseRestoreHeader parses the x-amz-restore header, for example
//
//	ongoing-request="false", expiry-date="Fri, 21 Dec 2012 00:00:00 GMT"
func ParseRestoreHeader(header string) (blobtier.RestoreStatus, error) {
	fields := map[string]string{}
	for _, part := range splitFields(header) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return blobtier.RestoreStatus{}, fmt.Errorf("malformed restore header: %q", header)
		}
		fields[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
	}

	ongoing, ok := fields["ongoing-request"]
	if !ok {
		return blobtier.RestoreStatus{}, fmt.Errorf("restore header without ongoing-request: %q", header)
	}
	if ongoing == "true" {
		return blobtier.RestoreStatus{Ongoing: true}, nil
	}

	status := blobtier.RestoreStatus{Available: true}
	if raw := fields["expiry-date"]; raw != "" {
		expiry, err := time.Parse(time.RFC1123, raw)
		if err != nil {
			return blobtier.RestoreStatus{}, fmt.Errorf("invalid restore expiry %q: %w", raw, err)
		}
		status.Expiry = expiry
	}
	return status, nil
}

// splitFields splits on commas that are outside quotes.
func splitFields(s string) []string {
	var parts []string
	inQuote := false
	start := 0
	for i, r := range s {
		switch r {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}
