package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"path/filepath"

	"github.com/function61/gokit/logex"
	"github.com/function61/portainer-deploy/pkg/stackdeployer"
	"github.com/function61/portainer-deploy/pkg/stackvalidate"
)

func deployFromEnv(ctx context.Context, stdout io.Writer, logger *log.Logger) error {
	conf, err := configFromEnv()
	if err != nil {
		return err
	}

	return deploy(ctx, *conf, stdout, logger)
}

// prints the server's response as JSON to stdout. errors out if the final status is
// anything else than 200.
func deploy(ctx context.Context, conf Config, stdout io.Writer, logger *log.Logger) error {
	logl := logex.Levels(logger)

	stackFile, err := ioutil.ReadFile(conf.StackFilePath)
	if err != nil {
		return err
	}

	if conf.Validate {
		if err := stackvalidate.Validate(
			ctx,
			conf.StackName,
			string(stackFile),
			conf.Env,
			filepath.Dir(conf.StackFilePath),
		); err != nil {
			return err
		}

		logl.Info.Printf("%s is valid", conf.StackFilePath)
	}

	result, err := stackdeployer.Deploy(ctx, conf.Connection, stackdeployer.Request{
		EndpointName: conf.EndpointName,
		StackName:    conf.StackName,
		StackFile:    string(stackFile),
		Env:          conf.Env,
		Type:         conf.Type,
		DryRun:       conf.DryRun,
	}, logex.Prefix("deployer", logger))
	if err != nil {
		return err
	}

	if conf.DryRun {
		logl.Info.Printf("dry run: would %s stack %s", result.Action, conf.StackName)

		_, err := fmt.Fprintln(stdout, result.Diff)
		return err
	}

	bodyJson, err := json.MarshalIndent(result.Response.Body, "", "  ")
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(stdout, string(bodyJson)); err != nil {
		return err
	}

	if result.Response.StatusCode != http.StatusOK {
		return fmt.Errorf("Error code: %d", result.Response.StatusCode)
	}

	return nil
}
