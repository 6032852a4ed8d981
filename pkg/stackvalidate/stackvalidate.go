// Pre-flight check that a stack file is a loadable compose document, so a broken file
// fails the pipeline before anything is sent to Portainer
package stackvalidate

import (
	"context"
	"fmt"

	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"
	"github.com/function61/portainer-deploy/pkg/portainerclient"
)

// Validate loads the stack file with the same variables Portainer will interpolate it
// with. workingDir is used for resolving relative paths (env_file etc.).
func Validate(
	ctx context.Context,
	stackName string,
	stackFile string,
	env []portainerclient.EnvPair,
	workingDir string,
) error {
	mapping := composetypes.Mapping{}
	for _, pair := range env {
		mapping[pair.Name] = pair.Value
	}

	details := composetypes.ConfigDetails{
		WorkingDir: workingDir,
		ConfigFiles: []composetypes.ConfigFile{
			{Filename: "stack.yml", Content: []byte(stackFile)},
		},
		Environment: mapping,
	}

	projectName := loader.NormalizeProjectName(stackName)
	if projectName == "" {
		projectName = "stack"
	}

	if _, err := loader.LoadWithContext(ctx, details, func(o *loader.Options) {
		o.SetProjectName(projectName, true)
	}); err != nil {
		return fmt.Errorf("stack file %s: %w", stackName, err)
	}

	return nil
}
