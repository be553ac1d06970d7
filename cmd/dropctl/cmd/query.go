package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/akalivaty/Artale-drop-bot/internal/indexer"
	"github.com/akalivaty/Artale-drop-bot/internal/searcher/executor"
	"github.com/akalivaty/Artale-drop-bot/internal/searcher/service"
	"github.com/akalivaty/Artale-drop-bot/internal/store"
)

// newService wires the same loader and resolver the server uses, without
// caching, metrics or analytics.
func newService(opts *options) *service.Service {
	loader := indexer.NewLoader(store.NewFileStore(opts.cfg.Data.Dir), opts.cfg.Data, nil)
	return service.New(loader, executor.NewFromConfig(opts.cfg.Render), nil, nil, nil)
}

type queryFunc func(s *service.Service, ctx context.Context, text string) service.Reply

// runQuery prints the reply text. Replies the service could not produce
// become a non-zero exit after printing.
func runQuery(opts *options, query queryFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		reply := query(newService(opts), cmd.Context(), strings.Join(args, " "))
		fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
		switch reply.Outcome {
		case service.OutcomeUnavailable, service.OutcomeFailed:
			return fmt.Errorf("query %s", reply.Outcome)
		}
		return nil
	}
}

func newDropCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <keywords...>",
		Short: "List the monsters dropping items whose names contain every keyword",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery(opts, (*service.Service).Drops),
	}
}

func newMobCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mob <name>",
		Short: "List the drops of monsters whose names contain name",
		Long:  "Arguments are joined with single spaces and matched literally.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery(opts, (*service.Service).MonsterDrops),
	}
}

func newRewriteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rewrite <text>",
		Short: "Show text after query alias substitution",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery(opts, (*service.Service).Rewrite),
	}
}
