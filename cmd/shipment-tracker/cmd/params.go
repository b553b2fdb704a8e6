package cmd

import (
	"fmt"
	"strings"
)

// parseParams turns repeated key=value flags into the params map of a
// tracking call. Params for both URLs stay flat unless URL specific params
// are given, in which case the shared ones are copied into each URL's map.
func parseParams(shared, trackingOnly, endpointOnly []string) (map[string]any, error) {
	flat, err := parsePairs(shared)
	if err != nil {
		return nil, err
	}
	if len(trackingOnly) == 0 && len(endpointOnly) == 0 {
		if len(flat) == 0 {
			return nil, nil
		}
		return flat, nil
	}

	tracking, err := parsePairs(trackingOnly)
	if err != nil {
		return nil, err
	}
	endpoint, err := parsePairs(endpointOnly)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"tracking_url": merge(flat, tracking),
		"endpoint_url": merge(flat, endpoint),
	}, nil
}

// parsePairs parses key=value pairs. A repeated key collects its values.
func parsePairs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param %q: expected key=value", pair)
		}

		switch existing := out[key].(type) {
		case nil:
			out[key] = value
		case string:
			out[key] = []string{existing, value}
		case []string:
			out[key] = append(existing, value)
		}
	}
	return out, nil
}

// merge returns base overlaid with extra
func merge(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
