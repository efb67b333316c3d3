package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ticketlottery/internal/scheduler"
	"ticketlottery/internal/services"
)

var drawDue bool

var drawCmd = &cobra.Command{
	Use:   "draw [lottery-id]",
	Short: "Draw the winners of a lottery, or of every due lottery with --due",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDraw,
}

func init() {
	drawCmd.Flags().BoolVar(&drawDue, "due", false, "Draw every ACTIVE lottery whose draw date has passed")
}

func runDraw(cmd *cobra.Command, args []string) error {
	if drawDue == (len(args) == 1) {
		return errors.New("pass either a lottery id or --due")
	}

	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if drawDue {
		// The schedule is unused by RunOnce.
		drawer, err := scheduler.NewAutoDrawer(a.service, "@hourly")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d lotteries drawn\n", drawer.RunOnce(ctx))
		return nil
	}

	winners, err := a.service.PerformDrawing(ctx, args[0])
	if err != nil {
		var perr *services.DrawPersistenceError
		if errors.As(err, &perr) {
			fmt.Fprintln(out, "Winners drawn but NOT stored, record them manually:")
			for i, w := range perr.Winners {
				fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", i+1, w.Prize.Name, w.TicketNumber, w.UserID)
			}
		}
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPRIZE\tTICKET\tUSER\tDRAWN AT")
	for i, w := range winners {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, w.Prize.Name, w.TicketNumber, w.UserID, w.DrawDate.Format(time.RFC3339))
	}
	return tw.Flush()
}
