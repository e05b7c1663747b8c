package cmd

import (
	"fmt"
	"os"

	"github.com/psds-microservice/support-chat-service/internal/database"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/psds-microservice/support-chat-service/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage dashboard logins",
}

var agentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a login. The password is read from AGENT_PASSWORD unless --password is given.",
	RunE:  runAgentCreate,
}

var agentFlags struct {
	email        string
	name         string
	role         string
	restaurantID string
	password     string
}

func init() {
	f := agentCreateCmd.Flags()
	f.StringVar(&agentFlags.email, "email", "", "login email")
	f.StringVar(&agentFlags.name, "name", "", "display name")
	f.StringVar(&agentFlags.role, "role", string(model.RoleSupportAgent), "support_agent, super_admin or restaurant_manager")
	f.StringVar(&agentFlags.restaurantID, "restaurant-id", "", "restaurant for restaurant_manager logins")
	f.StringVar(&agentFlags.password, "password", "", "password")
	_ = agentCreateCmd.MarkFlagRequired("email")
	_ = agentCreateCmd.MarkFlagRequired("name")
	agentCmd.AddCommand(agentCreateCmd)
	rootCmd.AddCommand(agentCmd)
}

func runAgentCreate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	conn, err := database.Open(cfg.DSN(), log)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer func() { _ = database.Close(conn) }()

	password := agentFlags.password
	if password == "" {
		password = os.Getenv("AGENT_PASSWORD")
	}
	a := &model.Agent{
		Email:        agentFlags.email,
		Name:         agentFlags.name,
		Role:         model.ActorRole(agentFlags.role),
		RestaurantID: agentFlags.restaurantID,
	}
	if err := service.NewAgentService(conn).Create(cmd.Context(), a, password); err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	log.Info("agent created", zap.String("id", a.ID), zap.String("email", a.Email), zap.String("role", string(a.Role)))
	return nil
}
