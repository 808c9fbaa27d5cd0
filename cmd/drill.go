package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/solana-sos/emergency/adapters"
	"github.com/solana-sos/emergency/adapters/audio"
	"github.com/solana-sos/emergency/adapters/dispatcher"
	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/internal/config"
	"github.com/solana-sos/emergency/usecase"
)

var drillOpts struct {
	audioConfig     string
	actions         []string
	victimStatus    string
	capability      string
	location        string
	dispatcherReady bool
	userReady       bool
	actionCompleted bool
	cancel          bool
}

var drillCmd = &cobra.Command{
	Use:   "drill <category>",
	Short: "Rehearse a handoff against in-process adapters",
	Long: `Runs one incident end to end with a logging audio device and a logging
dispatcher transport. Nothing is dialed. Prints the chosen handoff strategy,
the dispatcher context, the instructions and the resulting call record.

Categories: ` + categoryList(),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(zapcore.WarnLevel)
		if err != nil {
			return err
		}
		defer logger.Sync()

		return drill(cmd.Context(), cmd.OutOrStdout(), entities.EmergencyCategory(args[0]), logger)
	},
}

func init() {
	f := drillCmd.Flags()
	f.StringVar(&drillOpts.audioConfig, "audio-config", "", "audio configuration YAML file")
	f.StringSliceVar(&drillOpts.actions, "action", nil, "lifesaving action in progress (repeatable)")
	f.StringVar(&drillOpts.victimStatus, "victim", "", "victim status")
	f.StringVar(&drillOpts.capability, "capability", "", "responder capability")
	f.StringVar(&drillOpts.location, "location", "", "location details")
	f.BoolVar(&drillOpts.dispatcherReady, "dispatcher-ready", false, "signal dispatcher readiness")
	f.BoolVar(&drillOpts.userReady, "user-ready", false, "signal responder readiness")
	f.BoolVar(&drillOpts.actionCompleted, "action-completed", false, "signal the current action finished")
	f.BoolVar(&drillOpts.cancel, "cancel", false, "cancel instead of ending the response")
	rootCmd.AddCommand(drillCmd)
}

func categoryList() string {
	names := make([]string, 0, len(entities.AllCategories()))
	for _, c := range entities.AllCategories() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

// eventPrinter writes coordinator events as they happen
type eventPrinter struct {
	w io.Writer
}

func (p eventPrinter) Publish(event entities.EmergencyEvent) {
	line := fmt.Sprintf("  event  %-22s status=%s", event.Type, event.Status)
	if event.Detail != "" {
		line += " " + event.Detail
	}
	fmt.Fprintln(p.w, line)
}

func drill(ctx context.Context, w io.Writer, category entities.EmergencyCategory, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	audioConfig := entities.DefaultAudioConfig()
	if drillOpts.audioConfig != "" {
		var err error
		if audioConfig, err = config.LoadAudioConfig(drillOpts.audioConfig); err != nil {
			return err
		}
	}

	device := audio.NewLogDevice("drill", logger)
	audioService, err := usecase.NewAudioService(audioConfig, device, logger)
	if err != nil {
		return err
	}
	if err := audioService.Initialize(ctx); err != nil {
		return err
	}

	records := adapters.NewMemoryCallRecordRepository()
	emergency := usecase.NewEmergencyService(audioService, dispatcher.NewLogTransport(logger), logger,
		usecase.WithCallRecords(records),
		usecase.WithEventPublisher(eventPrinter{w: w}))

	fmt.Fprintf(w, "Drill: %s\n", category.DisplayName())
	err = emergency.InitiateSmartHandoffWithAssessment(ctx, category, usecase.Assessment{
		CurrentActions:      drillOpts.actions,
		VictimStatus:        drillOpts.victimStatus,
		ResponderCapability: drillOpts.capability,
		LocationDetails:     drillOpts.location,
	})
	if err != nil {
		emergency.EndResponse()
		emergency.Close()
		return err
	}

	emergency.CoordinateHandoffTiming()
	if drillOpts.actionCompleted {
		emergency.SignalActionCompleted()
	}
	if drillOpts.userReady {
		emergency.SignalUserReady()
	}
	if drillOpts.dispatcherReady {
		emergency.SignalDispatcherReady()
	}

	snapshot := emergency.Snapshot()
	fmt.Fprintln(w)
	if snapshot.Handoff != nil {
		fmt.Fprintf(w, "Strategy:     %s (%s)\n", snapshot.Handoff.Strategy, usecase.StrategyRationale(category))
	}
	if snapshot.Context != nil {
		fmt.Fprintf(w, "Dispatcher:   %s\n", snapshot.Context.Summary())
	}
	fmt.Fprintf(w, "Speaker:      %.2f\n", device.Volume())
	fmt.Fprintf(w, "Status:       %s\n", snapshot.Status)
	if snapshot.Handoff != nil && snapshot.Status == entities.StatusCompleted {
		fmt.Fprintf(w, "Handoff delay: %s\n", snapshot.Handoff.HandoffDelay.Round(time.Millisecond))
	}
	fmt.Fprintln(w, "Instructions:")
	for i, instruction := range snapshot.Instructions {
		fmt.Fprintf(w, "  %d. %s\n", i+1, instruction)
	}
	fmt.Fprintln(w)

	if drillOpts.cancel {
		emergency.CancelResponse()
	} else {
		emergency.EndResponse()
	}
	emergency.Close()

	calls, err := records.ListRecent(ctx, 1)
	if err != nil {
		return err
	}
	for _, call := range calls {
		fmt.Fprintf(w, "Call record %s: final=%s successful=%t context=%t\n",
			call.ID, call.FinalStatus, call.HandoffSuccessful, call.ContextProvided)
	}
	return nil
}
