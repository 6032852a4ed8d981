// Ensures a named stack exists on a Portainer endpoint with the given content: creates
// it if it is missing, updates it if it is there
package stackdeployer

import (
	"context"
	"fmt"
	"log"

	"github.com/function61/gokit/logex"
	"github.com/function61/portainer-deploy/pkg/portainerclient"
	"github.com/sergi/go-diff/diffmatchpatch"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

type Request struct {
	EndpointName string
	StackName    string
	StackFile    string
	Env          []portainerclient.EnvPair
	Type         portainerclient.StackType
	DryRun       bool // resolve & diff, but don't create or update
}

type Result struct {
	Action   Action
	StackId  int                       // only for updates
	Response *portainerclient.Response // nil for dry runs
	Diff     string                    // only for dry runs
}

func Deploy(
	ctx context.Context,
	conn portainerclient.Connection,
	req Request,
	logger *log.Logger,
) (*Result, error) {
	logl := logex.Levels(logger)

	portainer, err := portainerclient.Login(ctx, conn)
	if err != nil {
		return nil, err
	}

	logl.Debug.Println("authenticated")

	endpoints, err := portainer.ListEndpoints(ctx)
	if err != nil {
		return nil, err
	}

	// a missing endpoint is not fatal yet. it is when we need its id.
	endpoint := portainerclient.FindEndpointByName(req.EndpointName, endpoints)
	if endpoint == nil {
		logl.Error.Printf("endpoint %s not found", req.EndpointName)
	}

	stacks, err := portainer.ListStacks(ctx)
	if err != nil {
		return nil, err
	}

	stack := portainerclient.FindStackByName(req.StackName, stacks)
	if stack == nil {
		return createStack(ctx, portainer, endpoint, req, logger)
	}

	return updateStack(ctx, portainer, endpoint, stack.Id, req, logger)
}

func createStack(
	ctx context.Context,
	portainer *portainerclient.Client,
	endpoint *portainerclient.Endpoint,
	req Request,
	logger *log.Logger,
) (*Result, error) {
	logl := logex.Levels(logger)

	logl.Info.Printf("stack %s not found - creating new %s stack", req.StackName, req.Type)

	swarmId := ""
	if req.Type == portainerclient.StackTypeSwarm {
		var err error
		swarmId, err = swarmIdentity(ctx, portainer, endpoint)
		if err != nil {
			return nil, err
		}
	}

	if endpoint == nil {
		return nil, fmt.Errorf("create %s: %w: %s", req.StackName, portainerclient.ErrEndpointNotFound, req.EndpointName)
	}

	if req.DryRun {
		return &Result{
			Action: ActionCreate,
			Diff:   diff("", req.StackFile),
		}, nil
	}

	res, err := portainer.CreateStack(ctx, endpoint.Id, req.Type, portainerclient.CreateStackRequest{
		Name:             req.StackName,
		StackFileContent: req.StackFile,
		Env:              req.Env,
		SwarmID:          swarmId,
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Action:   ActionCreate,
		Response: res,
	}, nil
}

func updateStack(
	ctx context.Context,
	portainer *portainerclient.Client,
	endpoint *portainerclient.Endpoint,
	stackId int,
	req Request,
	logger *log.Logger,
) (*Result, error) {
	logl := logex.Levels(logger)

	logl.Info.Printf("updating stack %s (id %d)", req.StackName, stackId)

	if endpoint == nil {
		return nil, fmt.Errorf("update %s: %w: %s", req.StackName, portainerclient.ErrEndpointNotFound, req.EndpointName)
	}

	if req.DryRun {
		previous, err := portainer.StackFile(ctx, stackId)
		if err != nil {
			return nil, err
		}

		return &Result{
			Action:  ActionUpdate,
			StackId: stackId,
			Diff:    diff(previous, req.StackFile),
		}, nil
	}

	res, err := portainer.UpdateStack(ctx, endpoint.Id, stackId, req.StackFile)
	if err != nil {
		return nil, err
	}

	return &Result{
		Action:   ActionUpdate,
		StackId:  stackId,
		Response: res,
	}, nil
}

// no endpoint, or a server that answers with an empty ID, both mean we cannot build a
// swarm stack. the create request must not go out in that case.
func swarmIdentity(
	ctx context.Context,
	portainer *portainerclient.Client,
	endpoint *portainerclient.Endpoint,
) (string, error) {
	if endpoint == nil {
		return "", fmt.Errorf("%w: %v", portainerclient.ErrSwarmIdentityUnavailable, portainerclient.ErrEndpointNotFound)
	}

	swarmId, err := portainer.SwarmIdentity(ctx, endpoint.Id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", portainerclient.ErrSwarmIdentityUnavailable, err)
	}

	if swarmId == "" {
		return "", fmt.Errorf("%w: endpoint %s reported empty ID", portainerclient.ErrSwarmIdentityUnavailable, endpoint.Name)
	}

	return swarmId, nil
}

func diff(previous string, updated string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(previous, updated, false)

	return dmp.DiffPrettyText(dmp.DiffCleanupMerge(diffs))
}
