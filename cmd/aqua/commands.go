package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/B4xAbhishek/aqua-ai-answers/client"
	"github.com/B4xAbhishek/aqua-ai-answers/identity"
	"github.com/B4xAbhishek/aqua-ai-answers/internal/config"
	"github.com/B4xAbhishek/aqua-ai-answers/internal/devserver"
	"github.com/B4xAbhishek/aqua-ai-answers/session"
)

// withApp runs fn against an opened session and closes it afterwards.
func withApp(cmd *cobra.Command, f *flags, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := f.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func newAskCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				if err := a.send(ctx, cmd.OutOrStdout(), strings.Join(args, " ")); err != nil {
					return err
				}
				if id := a.mgr.Snapshot().ActiveConversationID; id != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", id)
				}
				return nil
			})
		},
	}
}

// send submits text and prints the assistant turn it produced.
func (a *app) send(ctx context.Context, out io.Writer, text string) error {
	before := len(a.mgr.Snapshot().Turns)
	start := time.Now()
	if err := a.mgr.SendMessage(ctx, text); err != nil {
		return explain(err)
	}
	log.Debug().Dur("elapsed", time.Since(start)).Msg("message sent")
	turns := a.mgr.Snapshot().Turns
	if len(turns) <= before {
		// blank input or the session changed identity mid-flight
		return nil
	}
	last := turns[len(turns)-1]
	if last.Role == client.RoleAssistant {
		fmt.Fprintln(out, strings.TrimRight(a.render(last.Content), "\n"))
	}
	return nil
}

func newHistoryCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List previous conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				list, err := a.mgr.LoadHistoryList(ctx)
				if err != nil {
					return explain(err)
				}
				printHistory(cmd.OutOrStdout(), list)
				return nil
			})
		},
	}
}

func printHistory(out io.Writer, list []client.Summary) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No conversations yet.")
		return
	}
	for _, s := range list {
		fmt.Fprintf(out, "%s\t%s\n", s.ID, s.Title)
	}
}

func newOpenCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "open <conversation-id>",
		Short: "Print the turns of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				if err := a.mgr.OpenConversation(ctx, args[0]); err != nil {
					return explain(err)
				}
				a.printTurns(cmd.OutOrStdout(), a.mgr.Snapshot().Turns)
				return nil
			})
		},
	}
}

func (a *app) printTurns(out io.Writer, turns []client.Turn) {
	for _, t := range turns {
		switch t.Role {
		case client.RoleUser:
			fmt.Fprintf(out, "> %s\n", t.Content)
		default:
			fmt.Fprintln(out, strings.TrimRight(a.render(t.Content), "\n"))
		}
	}
}

func newStatusCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show identity and subscription status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				printStatus(cmd.OutOrStdout(), a.mgr.Snapshot())
				if err := a.lastError(); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "last error: %v\n", err)
				}
				return nil
			})
		},
	}
}

func printStatus(out io.Writer, s session.State) {
	if s.IdentityID == "" {
		fmt.Fprintln(out, "signed in:    no")
	} else {
		fmt.Fprintf(out, "signed in:    %s\n", s.IdentityID)
		fmt.Fprintf(out, "verified:     %t\n", s.Verified.LastVerifiedID == s.IdentityID)
	}
	fmt.Fprintf(out, "subscribed:   %t\n", s.Entitlement.IsEntitled)
	if s.Entitlement.Plan != nil {
		fmt.Fprintf(out, "plan:         %s\n", *s.Entitlement.Plan)
	}
	if s.Entitlement.ExpiresAt != nil {
		fmt.Fprintf(out, "renews:       %s\n", s.Entitlement.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "trial:        %t\n", s.Trial.Active)
	fmt.Fprintf(out, "can converse: %t\n", session.CanConverse(s))
}

func newSubscribeCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe",
		Short: "Start a checkout and print its URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				u, err := a.mgr.StartCheckout(ctx, a.cfg.CheckoutSuccessURL, a.cfg.CheckoutCancelURL)
				if err != nil {
					return explain(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to subscribe:\n%s\n", u)
				return nil
			})
		},
	}
}

func newPortalCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "portal",
		Short: "Open the billing portal and print its URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				u, err := a.mgr.StartPortal(ctx, a.cfg.PortalReturnURL)
				if err != nil {
					return explain(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Manage your subscription at:\n%s\n", u)
				return nil
			})
		},
	}
}

func newDocumentsCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List or upload reference documents",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List uploaded documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				docs, err := a.mgr.ListDocuments(ctx)
				if err != nil {
					return explain(err)
				}
				if len(docs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No documents.")
					return nil
				}
				for _, d := range docs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", d.ID, d.Name, d.UploadedAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = file.Close() }()
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				resp, err := a.mgr.UploadDocument(ctx, filepath.Base(args[0]), file)
				if err != nil {
					return explain(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%s)\n", filepath.Base(args[0]), resp.DocumentID)
				return nil
			})
		},
	})
	return cmd
}

func newHealthCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check backend health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.loadConfig()
			if err != nil {
				return err
			}
			api, err := f.newClient(cfg)
			if err != nil {
				return err
			}
			h, err := api.Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", api.BaseURL(), h.Status)
			return nil
		},
	}
}

func newLoginCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "login <token>",
		Short: "Store a bearer token in the token file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.loadConfig()
			if err != nil {
				return err
			}
			token := strings.TrimSpace(args[0])
			if token == "" {
				return errors.New("token is empty")
			}
			if err := identity.Save(cfg.TokenFile, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", identity.SubjectID(token))
			return nil
		},
	}
}

func newLogoutCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the token file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.loadConfig()
			if err != nil {
				return err
			}
			if err := identity.Remove(cfg.TokenFile); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newDevTokenCmd(f *flags) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "dev-token <subject>",
		Short: "Mint a token accepted by aqua-devserver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := config.LoadDevServer()
			if err != nil {
				return err
			}
			issuer, err := devserver.NewTokenIssuer(dev.JWTSecret, dev.JWTIssuer, dev.TokenTTL)
			if err != nil {
				return err
			}
			token, err := issuer.Issue(args[0])
			if err != nil {
				return err
			}
			if !save {
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			}
			cfg, err := f.loadConfig()
			if err != nil {
				return err
			}
			if err := identity.Save(cfg.TokenFile, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Write the token to the token file instead of printing it")
	return cmd
}
