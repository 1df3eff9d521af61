package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go-clinic-appointment/cmd/bootstrap"
	"go-clinic-appointment/config"
	"go-clinic-appointment/internal/delivery/dto"
	"go-clinic-appointment/internal/infrastructure/database"
	"go-clinic-appointment/pkg/validator"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "clinic",
		Short: "Clinic appointment, payment and prescription service",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".env", "Path to the env config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(adminCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap.New(*configPath)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return app.Run()
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			return database.MigrateUp(cfg.DB)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				steps = n
			}

			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			return database.MigrateDown(cfg.DB, steps)
		},
	})

	return cmd
}

func adminCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative account commands",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")

			req := &dto.RegisterAdminRequest{Email: email, Password: password, FullName: name}
			v := validator.NewValidator()
			if err := v.Validate(req); err != nil {
				return fmt.Errorf("invalid admin account: %v", v.FormatValidationErrors(err))
			}

			app, err := bootstrap.New(*configPath)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.Close()

			user, err := app.AuthUsecase.RegisterAdmin(context.Background(), req)
			if err != nil {
				return fmt.Errorf("failed to create admin: %w", err)
			}

			fmt.Printf("Admin created: %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	createCmd.Flags().String("email", "", "Admin email address")
	createCmd.Flags().String("password", "", "Admin password (min 8 characters)")
	createCmd.Flags().String("name", "", "Admin full name")
	cmd.AddCommand(createCmd)

	return cmd
}
