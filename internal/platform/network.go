package platform

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/qorzen/kernel/internal/kerrors"
)

// RestyNetwork is the default Network implementation: resty driving the
// request, its transport swapped for go-retryablehttp's so every request
// gets exponential-backoff retries, and a single Breaker shared by every
// request trips after repeated failures to stop hammering the downstream.
type RestyNetwork struct {
	client  *resty.Client
	breaker *Breaker
}

func NewRestyNetwork() *RestyNetwork {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 30 * time.Second
	retryClient.Logger = nil

	client := resty.New().
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", "qorzen-kernel/1.0")
	client.SetTransport(retryClient.StandardClient().Transport)

	return &RestyNetwork{
		client:  client,
		breaker: NewBreaker("platform.network", BreakerSettings{}),
	}
}

func (n *RestyNetwork) Request(ctx context.Context, req HTTPRequest) (HTTPResponse, error) {
	var resp HTTPResponse

	err := n.breaker.Guard(func() error {
		reqCtx := ctx
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}
		r := n.client.R().SetContext(reqCtx)
		for k, v := range req.Headers {
			r.SetHeader(k, v)
		}
		if len(req.Body) > 0 {
			r.SetBody(req.Body)
		}

		out, err := r.Execute(req.Method, req.URL)
		if err != nil {
			return kerrors.New(kerrors.KindIO, "platform.network", "request failed").WithCause(err).WithMeta("url", req.URL)
		}

		headers := make(map[string]string, len(out.Header()))
		for k, v := range out.Header() {
			if len(v) > 0 {
				headers[k] = v[0]
			}
		}
		resp = HTTPResponse{StatusCode: out.StatusCode(), Headers: headers, Body: out.Body()}

		if out.StatusCode() >= 500 {
			return kerrors.New(kerrors.KindIO, "platform.network", "server error").WithMeta("status", out.StatusCode())
		}
		return nil
	})
	if err != nil && resp.StatusCode == 0 {
		return HTTPResponse{}, err
	}
	return resp, nil
}
