package pager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v48/github"
	"github.com/google/go-querystring/query"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/G-Research/importscheduler/internal/common/importerrors"
	"github.com/G-Research/importscheduler/internal/representation"
)

const DefaultPerPage = 100

type HTTPConfig struct {
	BaseURL string `validate:"required,url"`
	// Token, if set, is sent as an OAuth2 bearer token.
	Token   string
	PerPage int `validate:"gte=0,lte=100"`
	// RequestsPerSecond throttles page requests; zero disables throttling.
	RequestsPerSecond float64 `validate:"gte=0"`
	Burst             int     `validate:"gte=0"`
	Timeout           time.Duration
}

// HTTPPager pages a GitHub style REST API: GET <base>/repos/<sourceRef>/<collection>?page=N&per_page=M.
// Paging stops at an empty page or at a response with no next page link.
type HTTPPager struct {
	client  *github.Client
	perPage int
	limiter *rate.Limiter
}

func NewHTTPPager(config HTTPConfig, httpClient *http.Client) (*HTTPPager, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	if config.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		authenticated := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.Token}))
		authenticated.Timeout = httpClient.Timeout
		httpClient = authenticated
	}
	client := github.NewClient(httpClient)
	baseURL, err := url.Parse(strings.TrimSuffix(config.BaseURL, "/") + "/")
	if err != nil {
		return nil, errors.WithStack(&importerrors.ErrInvalidArgument{Name: "baseURL", Value: config.BaseURL, Message: err.Error()})
	}
	client.BaseURL = baseURL

	perPage := config.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}
	return &HTTPPager{client: client, perPage: perPage, limiter: limiter}, nil
}

func (p *HTTPPager) EachPage(ctx context.Context, collection string, sourceRef string, options Options, fn func(Page) error) error {
	number := 1
	if s, ok := options["page"]; ok {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return errors.WithStack(&importerrors.ErrInvalidArgument{Name: "page", Value: s, Message: "must be a positive integer"})
		}
		number = n
	}
	for {
		objects, next, err := p.fetch(ctx, collection, sourceRef, options, number)
		if err != nil {
			return err
		}
		if len(objects) == 0 {
			return nil
		}
		if err := fn(Page{Number: number, Objects: objects}); err != nil {
			return err
		}
		if next <= number {
			return nil
		}
		number = next
	}
}

// fetch returns the objects on page number and the number of the next page, zero on the last page.
func (p *HTTPPager) fetch(ctx context.Context, collection string, sourceRef string, options Options, number int) ([]representation.Raw, int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, 0, errors.WithStack(err)
	}
	values, err := query.Values(github.ListOptions{Page: number, PerPage: p.perPage})
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	for k, v := range options {
		if k != "page" && k != "per_page" {
			values.Set(k, v)
		}
	}
	path := fmt.Sprintf("repos/%s/%s?%s", sourceRef, collection, values.Encode())
	req, err := p.client.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	log.WithField("url", req.URL.String()).Debug("fetching page")

	// the body is decoded here rather than by the client so that numeric ids keep their exact value
	var body bytes.Buffer
	resp, err := p.client.Do(ctx, req, &body)
	if err != nil {
		if resp != nil && resp.Response != nil {
			return nil, 0, errors.WithStack(&importerrors.ErrUnexpectedResponse{
				URL:        req.URL.String(),
				StatusCode: resp.StatusCode,
				Body:       errorMessage(err),
			})
		}
		return nil, 0, errors.Wrapf(err, "fetching page %d of %s", number, collection)
	}

	decoder := json.NewDecoder(&body)
	decoder.UseNumber()
	var objects []representation.Raw
	if err := decoder.Decode(&objects); err != nil {
		return nil, 0, errors.Wrapf(err, "decoding page %d of %s", number, collection)
	}
	return objects, resp.NextPage, nil
}

func errorMessage(err error) string {
	var errorResponse *github.ErrorResponse
	var rateLimit *github.RateLimitError
	var abuseRateLimit *github.AbuseRateLimitError
	switch {
	case errors.As(err, &errorResponse):
		return errorResponse.Message
	case errors.As(err, &rateLimit):
		return rateLimit.Message
	case errors.As(err, &abuseRateLimit):
		return abuseRateLimit.Message
	default:
		return err.Error()
	}
}
