package main

import (
	"fmt"
	"os"

	"github.com/function61/gokit/envvar"
	"github.com/function61/portainer-deploy/pkg/portainerclient"
	"github.com/function61/portainer-deploy/pkg/stackenv"
)

// CI passes plugin settings as PLUGIN_<SETTING> environment variables
const (
	envUrl         = "PLUGIN_URL"
	envUsername    = "PLUGIN_USERNAME"
	envPassword    = "PLUGIN_PASSWORD"
	envStackName   = "PLUGIN_STACK_NAME"
	envStackFile   = "PLUGIN_STACK_FILE"
	envEndpoint    = "PLUGIN_ENDPOINT"
	envEnvironment = "PLUGIN_ENVIRONMENT"
	envType        = "PLUGIN_TYPE"
	envSslVerify   = "PLUGIN_SSL_VERIFY"
	envDryRun      = "PLUGIN_DRY_RUN"
	envValidate    = "PLUGIN_VALIDATE"
)

type Config struct {
	Connection    portainerclient.Connection
	StackName     string
	StackFilePath string
	EndpointName  string
	Env           []portainerclient.EnvPair
	Type          portainerclient.StackType
	DryRun        bool
	Validate      bool
}

func connectionFromEnv() (*portainerclient.Connection, error) {
	url, err := required(envUrl)
	if err != nil {
		return nil, err
	}

	username, err := required(envUsername)
	if err != nil {
		return nil, err
	}

	password, err := required(envPassword)
	if err != nil {
		return nil, err
	}

	return &portainerclient.Connection{
		BaseUrl:  url,
		Username: username,
		Password: password,
		// anything else than "true" turns verification off once the setting is given
		SslVerify: sslVerifyFromEnv(),
	}, nil
}

func configFromEnv() (*Config, error) {
	conn, err := connectionFromEnv()
	if err != nil {
		return nil, err
	}

	stackName, err := required(envStackName)
	if err != nil {
		return nil, err
	}

	stackType, err := parseStackType(optional(envType, "compose"))
	if err != nil {
		return nil, err
	}

	env, err := stackenv.FromText(optional(envEnvironment, "[]")).Normalize()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", envEnvironment, err)
	}

	return &Config{
		Connection:    *conn,
		StackName:     stackName,
		StackFilePath: optional(envStackFile, "docker-compose.yml"),
		EndpointName:  optional(envEndpoint, "primary"),
		Env:           env,
		Type:          stackType,
		DryRun:        optional(envDryRun, "false") == "true",
		Validate:      optional(envValidate, "false") == "true",
	}, nil
}

func parseStackType(token string) (portainerclient.StackType, error) {
	switch token {
	case "stack", "swarm":
		return portainerclient.StackTypeSwarm, nil
	case "compose":
		return portainerclient.StackTypeCompose, nil
	default:
		return 0, fmt.Errorf("%s: unsupported type '%s'; expecting stack|compose", envType, token)
	}
}

func required(key string) (string, error) {
	value, err := envvar.Required(key)
	if err != nil {
		return "", fmt.Errorf("Missing required settings: %w", err)
	}

	return value, nil
}

// unset means verify. Once set, anything but "true" (empty included) turns it off.
func sslVerifyFromEnv() bool {
	value, isSet := os.LookupEnv(envSslVerify)
	if !isSet {
		return true
	}

	return value == "true"
}

func optional(key string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}
