package endpoint

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/drblury/hubflow/internal/runtime/config"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
)

// Scheme is the URI scheme of endpoint addresses:
//
//	eventhub://<stream>?group=<consumer-group>&mode=<buffered|durable|inline>
const Scheme = "eventhub"

// Address identifies an endpoint. Empty ConsumerGroup and Mode take the
// transport defaults.
type Address struct {
	Stream        string
	ConsumerGroup string
	Mode          string
}

// Parse reads an eventhub:// URI. A value without a scheme is taken as a bare
// stream name.
func Parse(raw string) (Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Address{}, fmt.Errorf("%w: empty address", errspkg.ErrInvalidEndpoint)
	}
	if !strings.Contains(raw, "://") {
		if strings.ContainsAny(raw, "/?#") {
			return Address{}, fmt.Errorf("%w: %q is not a stream name", errspkg.ErrInvalidEndpoint, raw)
		}
		return Address{Stream: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", errspkg.ErrInvalidEndpoint, err)
	}
	if !strings.EqualFold(u.Scheme, Scheme) {
		return Address{}, fmt.Errorf("%w: scheme %q, want %q", errspkg.ErrInvalidEndpoint, u.Scheme, Scheme)
	}
	if u.Host == "" {
		return Address{}, fmt.Errorf("%w: %q names no stream", errspkg.ErrInvalidEndpoint, raw)
	}
	if p := strings.Trim(u.Path, "/"); p != "" {
		return Address{}, fmt.Errorf("%w: unexpected path %q", errspkg.ErrInvalidEndpoint, u.Path)
	}

	q := u.Query()
	addr := Address{
		Stream:        u.Host,
		ConsumerGroup: q.Get("group"),
		Mode:          strings.ToLower(q.Get("mode")),
	}
	if addr.Mode != "" && !config.ValidMode(addr.Mode) {
		return Address{}, fmt.Errorf("%w: unknown mode %q", errspkg.ErrInvalidEndpoint, addr.Mode)
	}
	return addr, nil
}

// String renders the canonical URI form.
func (a Address) String() string {
	u := url.URL{Scheme: Scheme, Host: a.Stream}
	q := url.Values{}
	if a.ConsumerGroup != "" {
		q.Set("group", a.ConsumerGroup)
	}
	if a.Mode != "" {
		q.Set("mode", a.Mode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// withDefaults fills ConsumerGroup and Mode.
func (a Address) withDefaults(group, mode string) Address {
	if a.ConsumerGroup == "" {
		a.ConsumerGroup = group
	}
	if a.Mode == "" {
		a.Mode = mode
	}
	return a
}
