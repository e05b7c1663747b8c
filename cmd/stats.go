package cmd

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/psds-microservice/support-chat-service/internal/database"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/psds-microservice/support-chat-service/internal/service"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print system totals",
	RunE:  runStats,
}

var statsKind string

func init() {
	statsCmd.Flags().StringVar(&statsKind, "kind", "", "limit status counts to ticket or session")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	conn, err := database.Open(cfg.DSN(), log)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer func() { _ = database.Close(conn) }()

	svc := service.NewStatsService(conn)
	st, err := svc.SystemStats(cmd.Context())
	if err != nil {
		return err
	}
	admin := model.Actor{ID: "cli", Name: "cli", Role: model.RoleSuperAdmin}
	counts, err := svc.CountsByStatus(cmd.Context(), admin, model.ConversationKind(statsKind))
	if err != nil {
		return err
	}
	printStats(cmd.OutOrStdout(), st, counts)
	return nil
}

func printStats(w io.Writer, st *service.SystemStats, counts []service.StatusCount) {
	row := func(label string, n int64) {
		fmt.Fprintf(w, "%-18s %12s\n", label, humanize.Comma(n))
	}
	row("conversations", st.Conversations)
	row("  sessions", st.Sessions)
	row("  tickets", st.Tickets)
	row("open", st.Open)
	row("unassigned", st.Unassigned)
	row("messages today", st.MessagesToday)
	row("active agents", st.ActiveAgents)
	row("online now", st.OnlineNow)
	row("restaurants", st.RestaurantCount)
	if len(counts) > 0 {
		fmt.Fprintln(w)
		for _, c := range counts {
			row(string(c.Status), c.Total)
		}
	}
}
