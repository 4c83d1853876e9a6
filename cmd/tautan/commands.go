package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ambiyansyah-risyal/tautan"
)

func newGetCmd(a *app) *cobra.Command {
	var cached bool
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Send a GET request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []tautan.RequestOption
			if cached {
				opts = append(opts, tautan.Cached())
			}
			if ttl > 0 {
				opts = append(opts, tautan.CacheTTL(ttl))
			}
			return a.run(cmd, http.MethodGet, args[0], nil, opts)
		},
	}
	cmd.Flags().BoolVar(&cached, "cache", false, "serve from and store in the response cache")
	cmd.Flags().DurationVar(&ttl, "cache-ttl", 0, "cache TTL for this call (implies --cache)")
	return cmd
}

func newBodyCmd(a *app, verb string) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   verb + " <path>",
		Short: fmt.Sprintf("Send a %s request with a JSON body", strings.ToUpper(verb)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readBody(data)
			if err != nil {
				return err
			}
			return a.run(cmd, strings.ToUpper(verb), args[0], body, nil)
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON body, or @file to read it from a file")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>",
		Short: "Send a DELETE request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, http.MethodDelete, args[0], nil, nil)
		},
	}
}

func newLoginCmd(a *app) *cobra.Command {
	var pair tautan.TokenPair

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an access token and optional refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client.Login(cmd.Context(), pair); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged in")
			return nil
		},
	}
	cmd.Flags().StringVar(&pair.AccessToken, "access-token", "", "access token")
	cmd.Flags().StringVar(&pair.RefreshToken, "refresh-token", "", "refresh token")
	_ = cmd.MarkFlagRequired("access-token")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session and client state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			limiter := a.client.RateLimiter()

			fmt.Fprintf(out, "Base URL:      %s\n", valueOr(a.cfg.BaseURL, "(none)"))
			fmt.Fprintf(out, "Authenticated: %t\n", a.client.IsAuthenticated(cmd.Context()))
			fmt.Fprintf(out, "Token store:   %s\n", valueOr(a.cfg.TokenStore.Type, "memory"))
			fmt.Fprintf(out, "Rate limit:    %d/%d per %s\n", limiter.RemainingRequests(), limiter.Limit(), limiter.Window())
			if cb := a.client.CircuitBreaker(); cb != nil {
				fmt.Fprintf(out, "Circuit:       %s\n", cb.State())
			}
			fmt.Fprintf(out, "Version:       %s\n", tautan.Version)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Printing the version needs no config or client.
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), tautan.GetVersion())
		},
	}
}

func (a *app) run(cmd *cobra.Command, method, path string, body any, opts []tautan.RequestOption) error {
	start := time.Now()
	env, err := a.client.Request(cmd.Context(), method, path, body, opts...)
	elapsed := time.Since(start)

	if err != nil {
		var apiErr *tautan.APIError
		if errors.As(err, &apiErr) {
			a.logger.Debug().Str("details", apiErr.DebugInfo()).Msg("Request failed")
		}
		return err
	}

	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	outcome := "ok"
	if !env.Success {
		outcome = "soft failure"
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %s in %s, %s\n",
		method, path, outcome, elapsed.Round(time.Millisecond), humanize.Bytes(uint64(len(env.Data))))
	return nil
}

// readBody accepts inline JSON or @path. An empty value sends no body.
func readBody(data string) (any, error) {
	if data == "" {
		return nil, nil
	}

	raw := []byte(data)
	if strings.HasPrefix(data, "@") {
		var err error
		if data == "@-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(strings.TrimPrefix(data, "@"))
		}
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
	}

	if !json.Valid(raw) {
		return nil, errors.New("body is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
