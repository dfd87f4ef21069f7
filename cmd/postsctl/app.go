package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"posts-api/internal/client"
	"posts-api/internal/config"
)

// readPassword permite sustituir term.ReadPassword en tests.
var readPassword = term.ReadPassword

type app struct {
	cfg     *config.ClientConfig
	out     io.Writer
	logger  *zap.Logger
	storage *client.SQLiteStorage
	api     *client.APIClient
	session *client.SessionManager
}

func newApp(cfg *config.ClientConfig, out io.Writer) *app {
	return &app{cfg: cfg, out: out, logger: zap.NewNop()}
}

// open prepara el cliente HTTP y recupera la sesión guardada.
func (a *app) open(ctx context.Context) error {
	storage, err := client.OpenSQLiteStorage(ctx, a.cfg.SessionDB)
	if err != nil {
		return err
	}
	a.storage = storage
	a.api = client.NewAPIClient(a.cfg.APIURL, nil)
	a.session = client.NewSessionManager(a.api, storage, client.WithSessionLogger(a.logger))
	a.api.UseTokenSource(a.session)

	if _, err := a.session.Restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	first := true
	a.session.Subscribe(func(authenticated bool) {
		if first {
			first = false
			return
		}
		if authenticated {
			fmt.Fprintln(a.out, "logged in")
		} else {
			fmt.Fprintln(a.out, "logged out")
		}
	})
	return nil
}

func (a *app) close() error {
	if a.storage == nil {
		return nil
	}
	return a.storage.Close()
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) requireSession() error {
	if !a.session.IsAuthenticated() {
		return errors.New("not logged in: run `postsctl login` first")
	}
	return nil
}

func promptPassword(out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func readDraft(title, content, imagePath string) (client.PostDraft, error) {
	draft := client.PostDraft{Title: title, Content: content}
	if imagePath == "" {
		return draft, nil
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return client.PostDraft{}, fmt.Errorf("read image: %w", err)
	}
	draft.Image = data
	draft.ImageName = filepath.Base(imagePath)
	draft.ImageType = mimetype.Detect(data).String()
	return draft, nil
}

func newRootCmd(a *app) *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "postsctl",
		Short:         "posts-api command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if verbose {
				logger, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				a.logger = logger
			}
			return a.open(cmd.Context())
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log session events to stderr")
	root.AddCommand(
		newSignupCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newStatusCmd(a),
		newListCmd(a),
		newGetCmd(a),
		newCreateCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
	)
	return root
}

func credentialFlags(cmd *cobra.Command, email, password *string) {
	cmd.Flags().StringVar(email, "email", "", "account email")
	cmd.Flags().StringVar(password, "password", "", "account password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
}

func passwordOrPrompt(out io.Writer, password string) (string, error) {
	if password != "" {
		return password, nil
	}
	return promptPassword(out)
}

func newSignupCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "create an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := passwordOrPrompt(a.out, password)
			if err != nil {
				return err
			}
			res, err := a.api.Signup(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
	credentialFlags(cmd, &email, &password)
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "log in and keep the session until it expires",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := passwordOrPrompt(a.out, password)
			if err != nil {
				return err
			}
			return a.session.Login(cmd.Context(), email, pw)
		},
	}
	credentialFlags(cmd, &email, &password)
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.session.Logout(cmd.Context())
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show the current session",
		RunE: func(_ *cobra.Command, _ []string) error {
			if !a.session.IsAuthenticated() {
				fmt.Fprintln(a.out, "logged out")
				return nil
			}
			fmt.Fprintf(a.out, "logged in as %s until %s\n",
				a.session.UserID(), a.session.ExpiresAt().Local().Format(time.RFC3339))
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var pageSize, page int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list posts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.api.ListPosts(cmd.Context(), pageSize, page)
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "posts per page (0 lists everything)")
	cmd.Flags().IntVar(&page, "page", 0, "page number starting at 1")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "show one post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			post, err := a.api.GetPost(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(post)
		},
	}
}

func postFlags(cmd *cobra.Command, title, content, image *string) {
	cmd.Flags().StringVar(title, "title", "", "post title")
	cmd.Flags().StringVar(content, "content", "", "post content")
	cmd.Flags().StringVar(image, "image", "", "path to a png or jpeg image")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("content")
}

func newCreateCmd(a *app) *cobra.Command {
	var title, content, image string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "create a post",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			draft, err := readDraft(strings.TrimSpace(title), content, image)
			if err != nil {
				return err
			}
			post, err := a.api.CreatePost(cmd.Context(), draft)
			if err != nil {
				return err
			}
			return a.printJSON(post)
		},
	}
	postFlags(cmd, &title, &content, &image)
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var title, content, image string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "edit a post you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			draft, err := readDraft(strings.TrimSpace(title), content, image)
			if err != nil {
				return err
			}
			if err := a.api.UpdatePost(cmd.Context(), args[0], draft); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "updated")
			return nil
		},
	}
	postFlags(cmd, &title, &content, &image)
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "delete a post you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			if err := a.api.DeletePost(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "deleted")
			return nil
		},
	}
}
