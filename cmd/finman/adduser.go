package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"finman/internal/dto"
	"finman/internal/service"
	"finman/pkg/auth"
	"finman/pkg/logger"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAddUserCmd() *cobra.Command {
	var username, email, password string

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create an API user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" || email == "" {
				return errors.New("--username and --email are required")
			}

			out := cmd.OutOrStdout()
			if password == "" {
				_, _ = fmt.Fprint(out, "Password: ")
				var err error
				password, err = readPassword(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				_, _ = fmt.Fprintln(out)
			}
			if strings.TrimSpace(password) == "" {
				return errors.New("password cannot be empty")
			}

			cfg, appLogger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			st, err := openStores(cmd.Context(), cfg, appLogger)
			if err != nil {
				return err
			}
			defer st.close()

			jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration, cfg.JWT.RefreshExp)
			authService := service.NewAuthService(st.users, jwtManager, appLogger)

			resp, err := authService.Register(cmd.Context(), &dto.RegisterRequest{
				Username: username,
				Email:    email,
				Password: password,
			})
			if errors.Is(err, service.ErrUserExists) {
				return fmt.Errorf("user %s already exists", email)
			}
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			_, _ = fmt.Fprintf(out, "User %s created successfully with ID %s\n", resp.User.Username, resp.User.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&email, "email", "", "email used to log in")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// pipes and tests
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
