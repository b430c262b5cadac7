package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// createFlags are shared by create and run.
type createFlags struct {
	targetType   string
	value        string
	deep         bool
	noAI         bool
	noSocial     bool
	noGeo        bool
	knownName    string
	knownAddress string
	platforms    []string
}

func (f *createFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.targetType, "type", "t", "", "target type: email, username, phone, domain, ip, name, address, plate")
	cmd.Flags().StringVar(&f.value, "value", "", "target value")
	cmd.Flags().BoolVar(&f.deep, "deep", false, "deep scan with wider worker pools")
	cmd.Flags().BoolVar(&f.noAI, "no-ai", false, "skip the model enhancement of the analysis")
	cmd.Flags().BoolVar(&f.noSocial, "no-social", false, "skip social profile and post collection")
	cmd.Flags().BoolVar(&f.noGeo, "no-geo", false, "skip geolocation")
	cmd.Flags().StringVar(&f.knownName, "known-name", "", "name the subject is known to use")
	cmd.Flags().StringVar(&f.knownAddress, "known-address", "", "address the subject is known to live at")
	cmd.Flags().StringSliceVar(&f.platforms, "platforms", nil, "restrict username probing to these platforms")
}

func (f *createFlags) request() service.CreateRequest {
	flags := schemas.DefaultProcessingFlags()
	flags.DeepScan = f.deep
	flags.AIEnabled = !f.noAI
	if f.noSocial {
		flags.SocialEnabled = false
		flags.SocialPostsEnabled = false
	}
	flags.GeoEnabled = !f.noGeo
	flags.KnownName = f.knownName
	flags.KnownAddress = f.knownAddress
	flags.Platforms = f.platforms
	return service.CreateRequest{TargetType: f.targetType, TargetValue: f.value, Flags: &flags}
}

func (a *app) newCreateCmd() *cobra.Command {
	var f createFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Creates a queued investigation and prints its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *service.Service, _ *service.Components) error {
				inv, err := svc.CreateInvestigation(ctx, f.request())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), inv.ID)
				return nil
			})
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func (a *app) newRunCmd() *cobra.Command {
	var f createFlags
	cmd := &cobra.Command{
		Use:   "run [id]",
		Short: "Ticks an investigation until it completes or fails",
		Long: `Run polls tick on the scheduler poll interval until the investigation is
terminal. Without an id, --type and --value create the investigation first,
which is the way to use the in-memory store.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && (f.targetType == "" || f.value == "") {
				return errors.New("either an investigation id or --type and --value are required")
			}
			return a.withService(cmd, func(ctx context.Context, svc *service.Service, _ *service.Components) error {
				out := cmd.OutOrStdout()
				var id string
				if len(args) == 1 {
					id = args[0]
				} else {
					inv, err := svc.CreateInvestigation(ctx, f.request())
					if err != nil {
						return err
					}
					id = inv.ID
					fmt.Fprintf(out, "created %s\n", id)
				}

				var after int64
				status, err := svc.RunUntilDone(ctx, id, a.cfg.Scheduler().PollInterval, func(res schemas.TickResult) {
					after = printNewEvents(ctx, out, svc, id, after)
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s\n", id, status)
				if status == schemas.StatusFailed {
					return fmt.Errorf("investigation %s failed", id)
				}
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

// printNewEvents writes events past after and returns the new cursor.
func printNewEvents(ctx context.Context, out io.Writer, svc *service.Service, id string, after int64) int64 {
	events, err := svc.Events(ctx, id, after, 0)
	if err != nil {
		return after
	}
	for _, ev := range events {
		fmt.Fprintf(out, "[%3d%%] %-24s %-9s %s\n", ev.Percent, ev.StepLabel, ev.Status, ev.Message)
		after = ev.ID
	}
	return after
}

func (a *app) newTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick <id>",
		Short: "Runs at most one step of an investigation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *service.Service, _ *service.Components) error {
				res, err := svc.Tick(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func (a *app) newRegenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <id>",
		Short: "Drops every derived output and requeues an investigation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *service.Service, _ *service.Components) error {
				if err := svc.Regenerate(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], schemas.StatusQueued)
				return nil
			})
		},
	}
}

func (a *app) newEventsCmd() *cobra.Command {
	var (
		after int64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "events <id>",
		Short: "Lists progress events after a cursor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *service.Service, _ *service.Components) error {
				events, err := svc.Events(ctx, args[0], after, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTEP\tSTATUS\tPERCENT\tMESSAGE")
				for _, ev := range events {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", ev.ID, ev.StepKey, ev.Status, ev.Percent, ev.Message)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "only events with an id greater than this")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events (default 500)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
