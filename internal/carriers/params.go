package carriers

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	trackingURLKey = "tracking_url"
	endpointURLKey = "endpoint_url"
)

// partitionParams splits caller params into the parts applied to the tracking
// and endpoint URLs. A flat map applies to both. A map carrying tracking_url
// or endpoint_url keys is split and each part applies only to its URL.
func partitionParams(params map[string]any) (tracking, endpoint url.Values, err error) {
	_, hasTracking := params[trackingURLKey]
	_, hasEndpoint := params[endpointURLKey]

	if !hasTracking && !hasEndpoint {
		flat, err := toValues(params)
		if err != nil {
			return nil, nil, err
		}
		return flat, cloneValues(flat), nil
	}

	if tracking, err = nestedValues(params[trackingURLKey], trackingURLKey); err != nil {
		return nil, nil, err
	}
	if endpoint, err = nestedValues(params[endpointURLKey], endpointURLKey); err != nil {
		return nil, nil, err
	}
	return tracking, endpoint, nil
}

func nestedValues(v any, key string) (url.Values, error) {
	switch m := v.(type) {
	case nil:
		return url.Values{}, nil
	case map[string]any:
		return toValues(m)
	case map[string]string:
		out := url.Values{}
		for k, s := range m {
			out.Set(k, s)
		}
		return out, nil
	case url.Values:
		return cloneValues(m), nil
	default:
		return nil, fmt.Errorf("%w: %s params must be a map, got %T", ErrInvalidArgument, key, v)
	}
}

func toValues(params map[string]any) (url.Values, error) {
	out := url.Values{}
	for key, value := range params {
		switch v := value.(type) {
		case string:
			out.Set(key, v)
		case []string:
			out[key] = append([]string(nil), v...)
		case int:
			out.Set(key, strconv.Itoa(v))
		case int64:
			out.Set(key, strconv.FormatInt(v, 10))
		case float64:
			out.Set(key, strconv.FormatFloat(v, 'f', -1, 64))
		case bool:
			out.Set(key, strconv.FormatBool(v))
		case nil:
			out.Set(key, "")
		default:
			return nil, fmt.Errorf("%w: unsupported value for param %q: %T", ErrInvalidArgument, key, value)
		}
	}
	return out, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// buildURL appends base params followed by extra params to rawURL. Extra
// params replace base params with the same key. Keys are emitted sorted.
func buildURL(rawURL string, base, extra url.Values) string {
	query := cloneValues(base)
	for k, vals := range extra {
		query[k] = append([]string(nil), vals...)
	}
	if len(query) == 0 {
		return rawURL
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + query.Encode()
}
