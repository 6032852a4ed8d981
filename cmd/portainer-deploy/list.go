package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/osutil"
	"github.com/function61/portainer-deploy/pkg/portainerclient"
	"github.com/scylladb/termtables"
	"github.com/spf13/cobra"
)

func endpointsEntry() *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "List endpoints of the Portainer server",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(listEndpoints(
				osutil.CancelOnInterruptOrTerminate(logex.StandardLogger()),
				os.Stdout))
		},
	}
}

func stacksEntry() *cobra.Command {
	return &cobra.Command{
		Use:   "stacks",
		Short: "List stacks of the Portainer server",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(listStacks(
				osutil.CancelOnInterruptOrTerminate(logex.StandardLogger()),
				os.Stdout))
		},
	}
}

func listEndpoints(ctx context.Context, out io.Writer) error {
	portainer, err := loginFromEnv(ctx)
	if err != nil {
		return err
	}

	endpoints, err := portainer.ListEndpoints(ctx)
	if err != nil {
		return err
	}

	tbl := termtables.CreateTable()
	tbl.AddHeaders("ID", "Name", "Status", "Stacks")

	for _, endpoint := range endpoints {
		stackCount := ""
		if len(endpoint.Snapshots) > 0 {
			stackCount = strconv.Itoa(endpoint.Snapshots[0].StackCount)
		}

		tbl.AddRow(
			strconv.Itoa(endpoint.Id),
			endpoint.Name,
			strconv.Itoa(endpoint.Status),
			stackCount)
	}

	_, err = fmt.Fprintln(out, tbl.Render())
	return err
}

func listStacks(ctx context.Context, out io.Writer) error {
	portainer, err := loginFromEnv(ctx)
	if err != nil {
		return err
	}

	stacks, err := portainer.ListStacks(ctx)
	if err != nil {
		return err
	}

	tbl := termtables.CreateTable()
	tbl.AddHeaders("ID", "Name", "Type", "Endpoint ID", "ENV vars")

	for _, stack := range stacks {
		tbl.AddRow(
			strconv.Itoa(stack.Id),
			stack.Name,
			stack.Type.String(),
			strconv.Itoa(stack.EndpointID),
			strconv.Itoa(len(stack.Env)))
	}

	_, err = fmt.Fprintln(out, tbl.Render())
	return err
}

func loginFromEnv(ctx context.Context) (*portainerclient.Client, error) {
	conn, err := connectionFromEnv()
	if err != nil {
		return nil, err
	}

	return portainerclient.Login(ctx, *conn)
}
