package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"pickme-client/internal/location"
	"pickme-client/internal/models"
	"pickme-client/internal/render"
	"pickme-client/internal/services"

	"github.com/spf13/cobra"
)

// positionFlags let a command pin the device location
type positionFlags struct {
	latitude  float64
	longitude float64
}

func (p *positionFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&p.latitude, "lat", 0, "Use this latitude instead of the configured location source")
	cmd.Flags().Float64Var(&p.longitude, "lng", 0, "Use this longitude instead of the configured location source")
}

// provider returns a static provider when --lat and --lng were given
func (p *positionFlags) provider(cmd *cobra.Command, fallback location.Provider) location.Provider {
	if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng") {
		return location.NewStatic(models.Coordinate{Latitude: p.latitude, Longitude: p.longitude})
	}
	return fallback
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, arg)
	}
	return id, nil
}

func newNearbyCommand(opts *rootOptions) *cobra.Command {
	var (
		pos    positionFlags
		radius float64
	)

	cmd := &cobra.Command{
		Use:   "nearby",
		Short: "List active pick requests around you",
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			fix, err := location.Acquire(ctx, pos.provider(cmd, a.location))
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("radius") {
				a.cfg.Nearby.RadiusMeters = radius
			}

			requests, err := a.nearbyPoller().Start(ctx, fix.Coordinate)
			if err != nil {
				return err
			}
			render.NewConsole(cmd.OutOrStdout()).ShowMarkers(requests)
			return nil
		}),
	}

	pos.register(cmd)
	cmd.Flags().Float64Var(&radius, "radius", 0, "Search radius in meters (default from config)")
	return cmd
}

func newCreateCommand(opts *rootOptions) *cobra.Command {
	var (
		pos      positionFlags
		activity string
		duration int
	)

	presets := make([]string, 0, len(services.DurationPresets))
	for _, d := range services.DurationPresets {
		presets = append(presets, strconv.Itoa(d))
	}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Broadcast a pick request at your current location",
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			wizard := services.NewActivityWizard(a.session, pos.provider(cmd, a.location), a.client)
			pr, err := wizard.Submit(ctx, services.ActivityDraft{Label: activity, DurationMinutes: duration})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pick request %d created: %s for %d min\n",
				pr.PickRequestID, render.Label(*pr), pr.DurationMinutes)
			return nil
		}),
	}

	pos.register(cmd)
	cmd.Flags().StringVar(&activity, "activity", "", "Activity: "+strings.Join(services.ActivityLabels, ", ")+" or your own")
	cmd.Flags().IntVar(&duration, "duration", 60, "Duration in minutes, e.g. "+strings.Join(presets, ", "))
	_ = cmd.MarkFlagRequired("activity")
	return cmd
}

func newMineCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List your own pick requests",
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			requests, err := a.matchBook(nil).MyPickRequests(ctx)
			if err != nil {
				return err
			}
			printPickRequests(cmd.OutOrStdout(), requests)
			return nil
		}),
	}
}

func newCancelCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <pick-request-id>",
		Short: "Cancel one of your active pick requests",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "pick request id")
			if err != nil {
				return err
			}
			if err := a.matchBook(nil).Cancel(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pick request %d cancelled\n", id)
			return nil
		}),
	}
}

func newPickCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pick <pick-request-id>",
		Short: "Send a pick to someone nearby",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "pick request id")
			if err != nil {
				return err
			}
			m, err := a.matchBook(nil).SendPick(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pick sent to %s, waiting for approval (match %d)\n", m.RequesterName, m.MatchID)
			return nil
		}),
	}
}

func newRespondCommand(opts *rootOptions) *cobra.Command {
	var decline bool

	cmd := &cobra.Command{
		Use:   "respond <match-id>",
		Short: "Approve (default) or decline a pick on one of your requests",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "match id")
			if err != nil {
				return err
			}
			m, err := a.matchBook(nil).Respond(ctx, id, !decline)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Match %d with %s is now %s\n", m.MatchID, m.PickerName, m.Status)
			return nil
		}),
	}

	cmd.Flags().BoolVar(&decline, "decline", false, "Decline instead of approving")
	return cmd
}

func newMatchesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "matches",
		Short: "Show your pending and accepted matches",
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			profile, err := a.matchBook(nil).Profile(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Pending (%d)\n", len(profile.Pending))
			printMatches(out, profile.Pending)
			fmt.Fprintf(out, "\nAccepted (%d)\n", len(profile.Accepted))
			printMatches(out, profile.Accepted)
			fmt.Fprintf(out, "\nYour pick requests (%d)\n", len(profile.PickRequests))
			printPickRequests(out, profile.PickRequests)
			return nil
		}),
	}
}

func printMatches(out io.Writer, matches []models.Match) {
	if len(matches) == 0 {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MATCH\tPICK REQUEST\tPICKER\tREQUESTER\tSTATUS")
	for _, m := range matches {
		id := strconv.FormatInt(m.MatchID, 10)
		if m.Derived {
			id = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", id, m.PickRequestID, m.PickerName, m.RequesterName, m.Status)
	}
	tw.Flush()
}

func printPickRequests(out io.Writer, requests []models.PickRequest) {
	if len(requests) == 0 {
		fmt.Fprintln(out, "No pick requests")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACTIVITY\tDURATION\tSTATUS\tCREATED")
	for _, r := range requests {
		fmt.Fprintf(tw, "%d\t%s\t%d min\t%s\t%s\n", r.PickRequestID, render.Label(r), r.DurationMinutes, r.Status, r.CreatedAt)
	}
	tw.Flush()
}
