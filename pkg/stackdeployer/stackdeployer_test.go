package stackdeployer

import (
	"context"
	"errors"
	"io/ioutil"
	"log"
	"net/http"
	"strings"
	"testing"

	"github.com/function61/gokit/assert"
	"github.com/function61/portainer-deploy/pkg/portainerclient"
	"github.com/function61/portainer-deploy/pkg/portainerclient/portainerfake"
)

var discard = log.New(ioutil.Discard, "", 0)

const composeFile = "version: '3'\nservices:\n  web:\n    image: nginx\n"

func newServer() *portainerfake.Server {
	server := portainerfake.New()
	server.Endpoints = []portainerclient.Endpoint{
		{Id: 1, Name: "primary"},
		{Id: 2, Name: "swarm"},
	}
	server.SwarmIDs[2] = "swarm-abc"

	return server
}

func siteRequest() Request {
	return Request{
		EndpointName: "primary",
		StackName:    "site",
		StackFile:    composeFile,
		Env: []portainerclient.EnvPair{
			{Name: "A", Value: "1"},
			{Name: "B", Value: "2"},
		},
		Type: portainerclient.StackTypeCompose,
	}
}

func TestCreatesWhenStackAbsent(t *testing.T) {
	server := newServer()
	defer server.Close()

	server.AddStack(portainerclient.Stack{Id: 3, Name: "blog", EndpointID: 1}, "")

	result, err := Deploy(context.Background(), server.Connection(), siteRequest(), discard)
	assert.Assert(t, err == nil)
	assert.EqualString(t, string(result.Action), "create")
	assert.EqualInt(t, result.Response.StatusCode, http.StatusOK)

	writes := server.Writes()
	assert.Assert(t, len(writes) == 1)
	assert.EqualString(t, writes[0].Method, http.MethodPost)
	assert.EqualString(t, writes[0].Path, "/api/stacks")
	assert.EqualString(t, writes[0].Query, "endpointId=1&method=string&type=2")
	assert.Assert(t, strings.Contains(writes[0].Body, `"Env":[{"name":"A","value":"1"},{"name":"B","value":"2"}]`))
	assert.Assert(t, !strings.Contains(writes[0].Body, "SwarmID"))
}

func TestUpdatesWhenStackPresent(t *testing.T) {
	server := newServer()
	defer server.Close()

	server.AddStack(portainerclient.Stack{Id: 3, Name: "blog", EndpointID: 1}, "")
	server.AddStack(portainerclient.Stack{Id: 7, Name: "site", EndpointID: 1}, "old")

	result, err := Deploy(context.Background(), server.Connection(), siteRequest(), discard)
	assert.Assert(t, err == nil)
	assert.EqualString(t, string(result.Action), "update")
	assert.Assert(t, result.StackId == 7)

	writes := server.Writes()
	assert.Assert(t, len(writes) == 1)
	assert.EqualString(t, writes[0].Method, http.MethodPut)
	assert.EqualString(t, writes[0].Path, "/api/stacks/7")
	assert.EqualString(t, writes[0].Query, "endpointId=1")
	assert.EqualString(
		t,
		strings.TrimSpace(writes[0].Body),
		`{"StackFileContent":"version: '3'\nservices:\n  web:\n    image: nginx\n","Prune":true}`)
}

func TestSecondDeployConverges(t *testing.T) {
	server := newServer()
	defer server.Close()

	first, err := Deploy(context.Background(), server.Connection(), siteRequest(), discard)
	assert.Assert(t, err == nil)
	assert.EqualString(t, string(first.Action), "create")

	second, err := Deploy(context.Background(), server.Connection(), siteRequest(), discard)
	assert.Assert(t, err == nil)
	assert.EqualString(t, string(second.Action), "update")
	assert.Assert(t, second.StackId == 100) // id the fake assigned on create

	writes := server.Writes()
	assert.Assert(t, len(writes) == 2)
	assert.EqualString(t, writes[1].Path, "/api/stacks/100")
}

func TestSwarmCreate(t *testing.T) {
	server := newServer()
	defer server.Close()

	req := siteRequest()
	req.EndpointName = "swarm"
	req.Type = portainerclient.StackTypeSwarm

	_, err := Deploy(context.Background(), server.Connection(), req, discard)
	assert.Assert(t, err == nil)

	writes := server.Writes()
	assert.Assert(t, len(writes) == 1)
	assert.EqualString(t, writes[0].Query, "endpointId=2&method=string&type=1")
	assert.Assert(t, strings.Contains(writes[0].Body, `"SwarmID":"swarm-abc"`))
}

func TestSwarmCreateWithoutIdentityFails(t *testing.T) {
	tcs := []struct {
		title    string
		endpoint string
	}{
		{"endpoint not a swarm manager", "primary"},
		{"endpoint not found", "nonexistent"},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.title, func(t *testing.T) {
			server := newServer()
			defer server.Close()

			req := siteRequest()
			req.EndpointName = tc.endpoint
			req.Type = portainerclient.StackTypeSwarm

			_, err := Deploy(context.Background(), server.Connection(), req, discard)
			assert.Assert(t, errors.Is(err, portainerclient.ErrSwarmIdentityUnavailable))
			assert.EqualInt(t, len(server.Writes()), 0)
		})
	}
}

func TestEndpointNotFound(t *testing.T) {
	server := newServer()
	defer server.Close()

	server.AddStack(portainerclient.Stack{Id: 7, Name: "site", EndpointID: 1}, "old")

	req := siteRequest()
	req.EndpointName = "nonexistent"

	// update
	_, err := Deploy(context.Background(), server.Connection(), req, discard)
	assert.Assert(t, errors.Is(err, portainerclient.ErrEndpointNotFound))

	// create
	req.StackName = "newsite"
	_, err = Deploy(context.Background(), server.Connection(), req, discard)
	assert.Assert(t, errors.Is(err, portainerclient.ErrEndpointNotFound))

	assert.EqualInt(t, len(server.Writes()), 0)
}

func TestAuthFailureStopsEverything(t *testing.T) {
	server := newServer()
	defer server.Close()

	conn := server.Connection()
	conn.Password = "wrong"

	_, err := Deploy(context.Background(), conn, siteRequest(), discard)
	assert.Assert(t, errors.Is(err, portainerclient.ErrAuthenticationFailed))

	requests := server.Requests()
	assert.Assert(t, len(requests) == 1)
	assert.EqualString(t, requests[0].Path, "/api/auth")
}

func TestFailedUpdateIsReportedAsResponse(t *testing.T) {
	server := newServer()
	defer server.Close()

	server.AddStack(portainerclient.Stack{Id: 7, Name: "site", EndpointID: 1}, "old")
	server.FailWithStatus = http.StatusBadRequest

	result, err := Deploy(context.Background(), server.Connection(), siteRequest(), discard)
	assert.Assert(t, err == nil)
	assert.EqualInt(t, result.Response.StatusCode, http.StatusBadRequest)
}

func TestDryRun(t *testing.T) {
	server := newServer()
	defer server.Close()

	server.AddStack(portainerclient.Stack{Id: 7, Name: "site", EndpointID: 1}, "version: '3'\n")

	req := siteRequest()
	req.DryRun = true

	result, err := Deploy(context.Background(), server.Connection(), req, discard)
	assert.Assert(t, err == nil)
	assert.EqualString(t, string(result.Action), "update")
	assert.Assert(t, result.Response == nil)
	assert.Assert(t, strings.Contains(result.Diff, "image: nginx"))

	req.StackName = "newsite"

	result, err = Deploy(context.Background(), server.Connection(), req, discard)
	assert.Assert(t, err == nil)
	assert.EqualString(t, string(result.Action), "create")

	assert.EqualInt(t, len(server.Writes()), 0)
}
