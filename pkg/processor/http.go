package processor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/teslashibe/go-freefield/internal/httpc"
)

// HTTPProcessor talks to a gateway daemon that hosts the vendor control
// on the lab PC:
//
//	PUT  /api/processors/{name}/tags/{tag}  {"value": x} or {"data": [...]}
//	GET  /api/processors/{name}/tags/{tag}  -> {"value": x}
//	POST /api/processors/{name}/trigger     {"trigger": n}
//	POST /api/processors/{name}/halt
type HTTPProcessor struct {
	BaseURL string
	name    string
	client  *http.Client
}

// TagValue is the body of scalar tag requests and replies.
type TagValue struct {
	Value float64 `json:"value"`
}

// TagData is the body of buffer tag writes.
type TagData struct {
	Data []float64 `json:"data"`
}

// TriggerRequest is the body of trigger requests.
type TriggerRequest struct {
	Trigger int `json:"trigger"`
}

// NewHTTP creates a gateway-backed processor. A nil client uses httpc.Client.
func NewHTTP(baseURL, name string, client *http.Client) *HTTPProcessor {
	if client == nil {
		client = httpc.Client
	}
	return &HTTPProcessor{
		BaseURL: strings.TrimRight(baseURL, "/"),
		name:    name,
		client:  client,
	}
}

// Name implements Processor.
func (p *HTTPProcessor) Name() string { return p.name }

func (p *HTTPProcessor) url(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, s := range parts {
		escaped[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/api/processors/%s/%s", p.BaseURL, url.PathEscape(p.name), strings.Join(escaped, "/"))
}

// SetTag implements Processor.
func (p *HTTPProcessor) SetTag(ctx context.Context, tag string, value float64) error {
	err := httpc.PutJSON(ctx, p.client, p.url("tags", tag), TagValue{Value: value}, nil)
	return wrap(p.name, "set "+tag, err)
}

// WriteTag implements Processor.
func (p *HTTPProcessor) WriteTag(ctx context.Context, tag string, data []float64) error {
	err := httpc.PutJSON(ctx, p.client, p.url("tags", tag), TagData{Data: data}, nil)
	return wrap(p.name, "write "+tag, err)
}

// GetTag implements Processor.
func (p *HTTPProcessor) GetTag(ctx context.Context, tag string) (float64, error) {
	var v TagValue
	if err := httpc.GetJSON(ctx, p.client, p.url("tags", tag), &v); err != nil {
		return 0, wrap(p.name, "get "+tag, err)
	}
	return v.Value, nil
}

// Trigger implements Processor.
func (p *HTTPProcessor) Trigger(ctx context.Context, n int) error {
	err := httpc.PostJSON(ctx, p.client, p.url("trigger"), TriggerRequest{Trigger: n}, nil)
	return wrap(p.name, "trigger", err)
}

// Halt implements Processor.
func (p *HTTPProcessor) Halt(ctx context.Context) error {
	err := httpc.PostJSON(ctx, p.client, p.url("halt"), struct{}{}, nil)
	return wrap(p.name, "halt", err)
}
