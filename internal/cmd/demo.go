// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dotandev/eventaggregator/eventbus"
	"github.com/dotandev/eventaggregator/internal/errors"
	"github.com/dotandev/eventaggregator/internal/logger"
	"github.com/dotandev/eventaggregator/internal/sample"
)

var (
	demoNotificationsFlag int
	demoSuperuserFlag     string
)

var demoCmd = &cobra.Command{
	Use:     "demo",
	GroupID: "core",
	Short:   "Run the chat-server scenario against a fully wired aggregator",
	Long: `Run a small chat-server scenario: guests cannot post, coupons discount
purchases, and permission requests are denied unless an admin role or the
superuser overrides the denial. Afterwards notifications are fanned out to
publisher-thread, main-loop and background-pool subscribers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if demoNotificationsFlag < 0 {
			return errors.WrapOutOfRange("notifications", demoNotificationsFlag)
		}

		s, err := newStack(cmd.Context(), loadedConfig)
		if err != nil {
			return err
		}
		defer s.Close()
		registerShutdownHook("event-aggregator", func(context.Context) error {
			return s.Close()
		})

		report, err := runDemo(cmd.Context(), s, demoSuperuserFlag, demoNotificationsFlag)
		if err != nil {
			return err
		}
		printDemoReport(cmd.OutOrStdout(), report)
		return nil
	},
}

type demoLine struct {
	Label  string
	Result string
	OK     bool
}

type demoReport struct {
	Lines         []demoLine
	Notifications map[eventbus.ThreadTarget]int64
	Audited       int64
}

// runDemo runs the scenario on a separate goroutine while the calling
// goroutine serves as the main loop.
func runDemo(ctx context.Context, s *stack, superuser string, notifications int) (demoReport, error) {
	if err := ctx.Err(); err != nil {
		return demoReport{}, err
	}

	var (
		report demoReport
		err    error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer s.Loop.Close()
		report, err = runScenario(ctx, s.Aggregator, superuser, notifications)
	}()

	if runErr := s.Loop.Run(ctx); runErr != nil {
		<-done
		return demoReport{}, runErr
	}
	<-done
	return report, err
}

func runScenario(ctx context.Context, agg *eventbus.Aggregator, superuser string, notifications int) (demoReport, error) {
	report := demoReport{Notifications: make(map[eventbus.ThreadTarget]int64)}

	var audited atomic.Int64
	audit, err := eventbus.Subscribe(agg, func(ctx context.Context, e eventbus.Event) error {
		audited.Add(1)
		logger.Logger.DebugContext(ctx, "Event published", "event_type", fmt.Sprintf("%T", e))
		return nil
	})
	if err != nil {
		return report, err
	}
	defer agg.Unsubscribe(audit)

	svc := sample.NewService(agg, logger.Logger)
	if superuser != "" {
		svc.Superuser = superuser
	}
	if err := svc.Initialize(); err != nil {
		return report, err
	}
	defer svc.Close()

	add := func(label, result string, ok bool) {
		report.Lines = append(report.Lines, demoLine{Label: label, Result: result, OK: ok})
	}

	if err := svc.Connect(ctx, "ada"); err != nil {
		return report, err
	}
	for _, user := range []string{"ada", "Guest"} {
		delivered, err := svc.SendMessage(ctx, user, "hello")
		if err != nil {
			return report, err
		}
		add("message from "+user, map[bool]string{true: "delivered", false: "blocked"}[delivered], delivered)
	}

	for _, coupon := range []string{"", sample.CouponTenOff} {
		price, err := svc.PurchaseItem(ctx, "ada", 105, coupon)
		if err != nil {
			return report, err
		}
		add(fmt.Sprintf("purchase at 105 with coupon %q", coupon), fmt.Sprintf("charged %d", price), true)
	}

	for _, req := range []struct{ user, role string }{
		{"ada", "Member"},
		{"ada", "Admin"},
		{svc.Superuser, "Member"},
	} {
		granted, err := svc.HasPermission(ctx, req.user, req.role)
		if err != nil {
			return report, err
		}
		add(fmt.Sprintf("permission for %s as %s", req.user, req.role), map[bool]string{true: "granted", false: "denied"}[granted], granted)
	}

	counts, err := fanOutNotifications(ctx, agg, notifications)
	if err != nil {
		return report, err
	}
	report.Notifications = counts
	report.Audited = audited.Load()
	return report, nil
}

// fanOutNotifications publishes n notifications to one subscriber per thread
// target and waits until every copy has been handled.
func fanOutNotifications(ctx context.Context, agg *eventbus.Aggregator, n int) (map[eventbus.ThreadTarget]int64, error) {
	targets := []eventbus.ThreadTarget{eventbus.PublisherThread, eventbus.MainThread, eventbus.BackgroundThread}
	counters := make([]atomic.Int64, len(targets))

	var wg sync.WaitGroup
	wg.Add(n * len(targets))

	for i, target := range targets {
		sub, err := eventbus.Subscribe(agg, func(context.Context, *sample.Notification) error {
			counters[i].Add(1)
			wg.Done()
			return nil
		}, eventbus.WithThreadTarget(target))
		if err != nil {
			return nil, err
		}
		defer agg.Unsubscribe(sub)
	}

	for i := range n {
		if err := agg.Publish(ctx, &sample.Notification{Number: i}); err != nil {
			return nil, err
		}
	}

	handled := make(chan struct{})
	go func() {
		wg.Wait()
		close(handled)
	}()
	select {
	case <-handled:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	counts := make(map[eventbus.ThreadTarget]int64, len(targets))
	for i, target := range targets {
		counts[target] = counters[i].Load()
	}
	return counts, nil
}

func printDemoReport(w io.Writer, report demoReport) {
	good := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintln(w, bold("Chat server"))
	for _, line := range report.Lines {
		result := good(line.Result)
		if !line.OK {
			result = bad(line.Result)
		}
		fmt.Fprintf(w, "  %-40s %s\n", line.Label, result)
	}

	fmt.Fprintln(w, bold("Notifications"))
	for _, target := range []eventbus.ThreadTarget{eventbus.PublisherThread, eventbus.MainThread, eventbus.BackgroundThread} {
		fmt.Fprintf(w, "  %-40s %d\n", target.String(), report.Notifications[target])
	}
	fmt.Fprintf(w, "%s %d events\n", bold("Audited"), report.Audited)
}

func init() {
	demoCmd.Flags().IntVar(&demoNotificationsFlag, "notifications", 10, "Number of notifications to fan out")
	demoCmd.Flags().StringVar(&demoSuperuserFlag, "superuser", "root", "User granted every permission")
	rootCmd.AddCommand(demoCmd)
}
