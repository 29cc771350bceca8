// Command dairy is a small terminal front end for the dairy note service,
// useful for exercising the SDK against a running backend.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	dairy "github.com/dairynotes/dairy-client"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DAIRY_DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// env holds the wired-up SDK pieces shared by the subcommands.
type env struct {
	cfg    dairy.Config
	creds  *dairy.TokenStore
	client *dairy.Client
}

func newEnv() (*env, error) {
	cfg, err := dairy.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	creds := dairy.NewTokenStore()
	if tok := os.Getenv("DAIRY_TOKEN"); tok != "" {
		creds.Set(tok)
	}
	return &env{
		cfg:    cfg,
		creds:  creds,
		client: dairy.NewFromConfig(cfg, creds),
	}, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dairy",
		Short:         "Terminal client for the dairy note service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newLoginCmd(),
		newListCmd(),
		newCreateCmd(),
		newEditCmd(),
		newDeleteCmd(),
		newSuggestCmd(),
		newHealthCmd(),
	)
	return root
}

func newLoginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and print a bearer token for DAIRY_TOKEN",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			token, err := e.client.SignIn(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			notes, err := e.client.ListNotes(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range notes {
				title := n.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("%s  %s  %s\n", n.ID, n.UpdatedAt.Format(time.RFC3339), title)
			}
			return nil
		},
	}
}

func newCreateCmd() *cobra.Command {
	var title, content string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a note",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			n, err := e.client.CreateNote(cmd.Context(), dairy.CreateNoteRequest{Title: title, Content: content})
			if err != nil {
				return err
			}
			fmt.Println(n.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "note title")
	cmd.Flags().StringVarP(&content, "content", "c", "", "note content")
	return cmd
}

func newEditCmd() *cobra.Command {
	var title, content string
	cmd := &cobra.Command{
		Use:   "edit <note-id>",
		Short: "Edit a note through the optimistic cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			cache := dairy.NewNoteCache(e.client, e.creds, e.cfg)
			defer cache.Close()
			if err := cache.Load(cmd.Context()); err != nil {
				return err
			}

			id := args[0]
			patch := dairy.NotePatch{}
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("content") {
				patch.Content = &content
			}
			if err := cache.SetCurrent(id); err != nil {
				return err
			}
			cache.Update(id, patch)
			cache.FlushPending()
			return cache.AwaitSync(cmd.Context(), id)
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&content, "content", "c", "", "new content")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <note-id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			return e.client.DeleteNote(cmd.Context(), args[0])
		},
	}
}

func newSuggestCmd() *cobra.Command {
	var templateID string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "suggest [content]",
		Short: "Stream an AI suggestion for note content (reads stdin when no argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			if templateID != "" {
				e.cfg.TemplateID = templateID
			}

			content := ""
			if len(args) == 1 {
				content = args[0]
			} else {
				var sb strings.Builder
				sc := bufio.NewScanner(os.Stdin)
				for sc.Scan() {
					sb.WriteString(sc.Text())
					sb.WriteString("\n")
				}
				content = sb.String()
			}

			session := dairy.NewSession(e.cfg, e.creds, nil)
			defer session.Close()
			orch := dairy.NewOrchestrator(session, e.cfg)

			done := make(chan struct{})
			printed := 0
			orch.Updated = func(s dairy.Suggestion) {
				if len(s.Content) > printed {
					fmt.Print(s.Content[printed:])
					printed = len(s.Content)
				}
				if s.Status != dairy.SuggestionStreaming {
					fmt.Println()
					if s.Status == dairy.SuggestionError {
						fmt.Fprintln(os.Stderr, "suggestion failed:", s.Message)
					}
					close(done)
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := session.Connect(ctx); err != nil {
				return err
			}
			if _, err := orch.Request(content, dairy.TriggerManual); err != nil {
				return err
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	cmd.Flags().StringVar(&templateID, "template", "", "prompt template id")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall suggestion timeout")
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			if err := e.client.Health(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}
