package google

import (
	"context"
	"net/http"
	"time"

	"dayplan/internal/domain"

	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// Connector builds adapters that share one rate limiter.
type Connector struct {
	Limiter  *rate.Limiter
	Location *time.Location
	// Options are appended after the HTTP client, e.g. a test endpoint.
	Options []option.ClientOption
}

func NewConnector(rps float64, burst int, loc *time.Location) *Connector {
	return &Connector{Limiter: rate.NewLimiter(rate.Limit(rps), burst), Location: loc}
}

func (c *Connector) opts(client *http.Client) []option.ClientOption {
	return append([]option.ClientOption{option.WithHTTPClient(client)}, c.Options...)
}

func (c *Connector) Calendar(ctx context.Context, client *http.Client) (domain.CalendarAPI, error) {
	a, err := NewCalendarAdapter(ctx, c.Limiter, c.Location, c.opts(client)...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (c *Connector) Tasks(ctx context.Context, client *http.Client) (domain.TaskListAPI, error) {
	a, err := NewTaskListAdapter(ctx, c.Limiter, c.Location, c.opts(client)...)
	if err != nil {
		return nil, err
	}
	return a, nil
}
