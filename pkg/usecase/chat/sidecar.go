package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/docqa/pkg/utils/logging"
)

// DecodeSources decodes the citation sidecar token, base64(JSON([]string)).
// A missing token means no citations. A malformed one is logged and treated
// the same way; it never fails the exchange.
func DecodeSources(ctx context.Context, token string) []string {
	token = strings.TrimSpace(token)
	if token == "" {
		return []string{}
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		logging.From(ctx).Warn("ignoring undecodable sources token", "error", err)
		return []string{}
	}

	var sources []string
	if err := json.Unmarshal(raw, &sources); err != nil {
		logging.From(ctx).Warn("ignoring malformed sources payload", "error", err)
		return []string{}
	}
	if sources == nil {
		return []string{}
	}

	return sources
}
