// Command workflowctl is the admin CLI for a workflowhost deployment:
// linting workflow definition files in CI, issuing link codes by hand, and
// inspecting the router's retry queue — all without a running transport.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/flowmesh/workflow/config"
	"github.com/flowmesh/workflow/engine"
	"github.com/flowmesh/workflow/identity"
	"github.com/flowmesh/workflow/router"
)

var configPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "workflowctl",
		Short: "Admin CLI for a workflowhost deployment",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a workflowhost config file (optional)")

	root.AddCommand(newValidateCommand())
	root.AddCommand(newLinkCodeCommand())
	root.AddCommand(newQueueCommand())
	return root
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a workflow definition file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := engine.LoadDefinitionFile(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: ok (%d steps, entryPoint=%s)\n", def.ID, len(def.Steps), def.EntryPoint)
			return nil
		},
	}
}

func newLinkCodeCommand() *cobra.Command {
	linkCodeCmd := &cobra.Command{
		Use:   "linkcode",
		Short: "Manage identity link codes",
	}
	linkCodeCmd.AddCommand(&cobra.Command{
		Use:   "issue <surface> <userId>",
		Short: "Issue a link code an unauthenticated second surface can claim",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			surfaceID, userID := args[0], args[1]
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := openIdentityService(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			code, err := svc.GenerateLinkCode(surfaceID, userID)
			if err != nil {
				return err
			}
			fmt.Printf("%s (expires %s)\n", code.Code, code.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	})
	return linkCodeCmd
}

func newQueueCommand() *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the router's retry queue",
	}
	queueCmd.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "List pending retry-queue entries grouped by user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			qstore, err := openQueueStore(cfg)
			if err != nil {
				return err
			}

			entries, err := qstore.Load(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("queue is empty")
				return nil
			}

			byUser := make(map[string]int)
			for _, e := range entries {
				byUser[e.UserID]++
			}
			users := make([]string, 0, len(byUser))
			for u := range byUser {
				users = append(users, u)
			}
			sort.Strings(users)
			for _, u := range users {
				fmt.Printf("%s\t%d pending\n", u, byUser[u])
			}
			return nil
		},
	})
	return queueCmd
}

func openIdentityService(ctx context.Context, cfg *config.Config) (*identity.Service, error) {
	store, err := identity.NewFileStore(cfg.Store.DataDir)
	if err != nil {
		return nil, err
	}
	manualLinks, err := identity.LoadManualLinkFile(cfg.Store.DataDir)
	if err != nil {
		return nil, err
	}
	return identity.NewService(ctx, store, manualLinks)
}

func openQueueStore(cfg *config.Config) (router.QueueStore, error) {
	if cfg.Router.QueueBackend == "redis" {
		return nil, fmt.Errorf("workflowctl: queue inspect does not yet support the redis backend; inspect it directly via redis-cli")
	}
	return router.NewFileQueueStore(cfg.Store.DataDir)
}
