package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"streakd/internal/runner"
)

var (
	runTestMode bool
	runMessage  string
	runContacts []string
	runHeadless bool
)

// runCmd executes a single streak run in the foreground
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one streak run now",
	Long: `Opens a browser session, verifies the login from the exported session
cookies, resolves every target contact in the conversation list, and sends
each one the streak message.

Example:
  streakd run --contact Dew --message "good morning" --headless`,
	RunE: runStreak,
}

func init() {
	runCmd.Flags().BoolVarP(&runTestMode, "test", "t", false, "resolve contacts without sending anything")
	runCmd.Flags().StringVarP(&runMessage, "message", "m", "", "override the configured streak message")
	runCmd.Flags().StringSliceVar(&runContacts, "contact", nil, "target nickname (repeatable, defaults to the stored roster)")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "run the browser without a window")
}

func runStreak(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore()
	if err != nil {
		return err
	}

	headless := cfg.Headless
	if cmd.Flags().Changed("headless") {
		headless = runHeadless
	}

	pterm.DefaultHeader.Println("streakd")
	if runTestMode {
		pterm.Info.Println("Test mode: contacts are resolved but nothing is sent")
	}

	r := runner.New(cfg, logger, newSink(), store)
	report, err := r.Run(ctx, runner.Options{
		Identities: runContacts,
		Message:    runMessage,
		TestMode:   runTestMode,
		Headless:   headless,
	})
	if err != nil {
		return err
	}

	renderReport(report)
	return nil
}

func renderReport(report *runner.Report) {
	pterm.DefaultSection.Println("Run Summary")

	if len(report.Results) > 0 {
		rows := pterm.TableData{{"Contact", "Delivered", "Attempts"}}
		for _, res := range report.Results {
			status := pterm.Red("no")
			if res.Success {
				status = pterm.Green("yes")
			}
			rows = append(rows, []string{res.Identity, status, fmt.Sprintf("%d", len(res.Attempts))})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	}

	delivered := report.SuccessCount()
	line := fmt.Sprintf("Delivered %d/%d (resolved %d of %d targets)",
		delivered, report.ResolvedCount, report.ResolvedCount, report.TargetCount)
	if delivered == report.TargetCount {
		pterm.Success.Println(line)
	} else {
		pterm.Warning.Println(line)
	}
}
