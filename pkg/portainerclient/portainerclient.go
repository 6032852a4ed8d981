// Portainer REST API client: just the calls needed to deploy a stack
package portainerclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/function61/gokit/ezhttp"
)

var (
	ErrAuthenticationFailed     = errors.New("authentication failed")
	ErrEndpointNotFound         = errors.New("endpoint not found")
	ErrSwarmIdentityUnavailable = errors.New("swarm identity unavailable")
)

type Client struct {
	baseUrl     string
	bearerToken string
	httpClient  *http.Client
}

// NewHttpClient is the one place where certificate verification is decided. Every
// request of a Client goes through the returned client.
func NewHttpClient(sslVerify bool) *http.Client {
	if sslVerify {
		return http.DefaultClient
	}

	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		},
	}
}

// Login exchanges username & password for a bearer token. The token has no refresh
// handling, it is expected to outlive a single deployment.
func Login(ctx context.Context, conn Connection) (*Client, error) {
	if conn.BaseUrl == "" {
		return nil, errors.New("empty BaseUrl")
	}

	p := &Client{
		baseUrl:    strings.TrimRight(conn.BaseUrl, "/"),
		httpClient: NewHttpClient(conn.SslVerify),
	}

	type request struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	type response struct {
		Jwt string `json:"jwt"`
	}

	res := response{}
	if _, err := ezhttp.Post(
		ctx,
		p.url("auth"),
		ezhttp.Client(p.httpClient),
		ezhttp.SendJson(&request{Username: conn.Username, Password: conn.Password}),
		ezhttp.RespondsJson(&res, true),
	); err != nil {
		var rse *ezhttp.ResponseStatusError
		if errors.As(err, &rse) {
			return nil, fmt.Errorf("Auth: %w: %v", ErrAuthenticationFailed, err)
		}

		return nil, fmt.Errorf("Auth: %w", err)
	}

	if res.Jwt == "" {
		return nil, fmt.Errorf("Auth: %w: no jwt in response", ErrAuthenticationFailed)
	}

	p.bearerToken = res.Jwt

	return p, nil
}

func (p *Client) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	endpoints := []Endpoint{}
	if _, err := ezhttp.Get(
		ctx,
		p.url("endpoints"),
		ezhttp.Client(p.httpClient),
		ezhttp.AuthBearer(p.bearerToken),
		ezhttp.RespondsJson(&endpoints, true),
	); err != nil {
		return nil, fmt.Errorf("ListEndpoints: %w", err)
	}

	return endpoints, nil
}

func (p *Client) ListStacks(ctx context.Context) ([]Stack, error) {
	stacks := []Stack{}
	if _, err := ezhttp.Get(
		ctx,
		p.url("stacks"),
		ezhttp.Client(p.httpClient),
		ezhttp.AuthBearer(p.bearerToken),
		ezhttp.RespondsJson(&stacks, true),
	); err != nil {
		return nil, fmt.Errorf("ListStacks: %w", err)
	}

	return stacks, nil
}

// SwarmIdentity returns the ID of the swarm cluster the endpoint manages. Creating a
// swarm stack needs it even though Portainer could resolve it by itself.
func (p *Client) SwarmIdentity(ctx context.Context, endpointId int) (string, error) {
	type response struct {
		ID string
	}

	res := response{}
	if _, err := ezhttp.Get(
		ctx,
		p.url(fmt.Sprintf("endpoints/%d/docker/swarm", endpointId)),
		ezhttp.Client(p.httpClient),
		ezhttp.AuthBearer(p.bearerToken),
		ezhttp.RespondsJson(&res, true),
	); err != nil {
		return "", fmt.Errorf("SwarmIdentity: %w", err)
	}

	return res.ID, nil
}

func (p *Client) StackFile(ctx context.Context, stackId int) (string, error) {
	type response struct {
		StackFileContent string
	}

	res := response{}
	if _, err := ezhttp.Get(
		ctx,
		p.url(fmt.Sprintf("stacks/%d/file", stackId)),
		ezhttp.Client(p.httpClient),
		ezhttp.AuthBearer(p.bearerToken),
		ezhttp.RespondsJson(&res, true),
	); err != nil {
		return "", fmt.Errorf("StackFile: %d: %w", stackId, err)
	}

	return res.StackFileContent, nil
}

func (p *Client) CreateStack(
	ctx context.Context,
	endpointId int,
	stackType StackType,
	req CreateStackRequest,
) (*Response, error) {
	if stackType == StackTypeSwarm && req.SwarmID == "" {
		return nil, fmt.Errorf("CreateStack: %w", ErrSwarmIdentityUnavailable)
	}

	query := url.Values{}
	query.Set("type", strconv.Itoa(int(stackType)))
	query.Set("method", "string")
	query.Set("endpointId", strconv.Itoa(endpointId))

	res, err := ezhttp.Post(
		ctx,
		p.url("stacks")+"?"+query.Encode(),
		ezhttp.Client(p.httpClient),
		ezhttp.AuthBearer(p.bearerToken),
		ezhttp.SendJson(&req),
		ezhttp.TolerateNon2xxResponse)
	if err != nil {
		return nil, fmt.Errorf("CreateStack: %w", err)
	}

	response, err := readResponse(res)
	if err != nil {
		return nil, fmt.Errorf("CreateStack: %w", err)
	}

	return response, nil
}

func (p *Client) UpdateStack(ctx context.Context, endpointId int, stackId int, stackFile string) (*Response, error) {
	req := UpdateStackRequest{
		StackFileContent: stackFile,
		Prune:            true,
	}

	query := url.Values{}
	query.Set("endpointId", strconv.Itoa(endpointId))

	res, err := ezhttp.Put(
		ctx,
		p.url(fmt.Sprintf("stacks/%d", stackId))+"?"+query.Encode(),
		ezhttp.Client(p.httpClient),
		ezhttp.AuthBearer(p.bearerToken),
		ezhttp.SendJson(&req),
		ezhttp.TolerateNon2xxResponse)
	if err != nil {
		return nil, fmt.Errorf("UpdateStack: %d: %w", stackId, err)
	}

	response, err := readResponse(res)
	if err != nil {
		return nil, fmt.Errorf("UpdateStack: %d: %w", stackId, err)
	}

	return response, nil
}

func (p *Client) url(path string) string {
	return p.baseUrl + "/" + path
}

// non-2xx is not an error here: the caller decides by looking at StatusCode
func readResponse(res *http.Response) (*Response, error) {
	defer res.Body.Close()

	raw, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: res.StatusCode,
		Body:       decodeBody(raw),
	}, nil
}

func decodeBody(raw []byte) interface{} {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var body interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return string(raw)
	}

	return body
}
