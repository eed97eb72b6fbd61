package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/akave-ai/logserver/internal/client"
)

const defaultServerAddr = "127.0.0.1:65333"

func addClientCommands(root *cobra.Command) {
	root.PersistentFlags().String("server", defaultServerAddr, "log server address for client commands")
	root.PersistentFlags().String("tokens", "logserver-tokens.json", "file the client keeps issued tokens in")

	root.AddCommand(newAddUserCmd(), newSendCmd(), newGetCmd(), newTokenCmd())
}

func clientFromFlags(cmd *cobra.Command) (*client.Client, *client.TokenStore, error) {
	addr, _ := cmd.Flags().GetString("server")
	path, _ := cmd.Flags().GetString("tokens")
	ts, err := client.LoadTokens(path)
	if err != nil {
		return nil, nil, err
	}
	return client.New(addr), ts, nil
}

func newAddUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adduser <user>",
		Short: "Register a user and remember the issued token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ts, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			user := args[0]
			tok, err := c.AddUser(cmd.Context(), user)
			if err != nil {
				return err
			}
			if err := ts.Put(user, tok, true); err != nil {
				return err
			}
			if err := ts.Save(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <user>",
		Short: "Append entries read from stdin or --file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ts, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			user := args[0]
			in := cmd.InOrStdin()
			if path, _ := cmd.Flags().GetString("file"); path != "" && path != "-" {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			entries, err := io.ReadAll(in)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return errors.New("nothing to send")
			}

			tok, known := ts.Get(user)
			echoed, err := c.Send(cmd.Context(), user, tok, entries)
			if err != nil {
				return err
			}
			if !known {
				if err := ts.Put(user, echoed, false); err != nil {
					return err
				}
				if err := ts.Save(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "stored new token for %s\n", user)
			}
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "-", "file to read entries from (default stdin)")
	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <user>",
		Short: "Print all entries, or the last --entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ts, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			user := args[0]
			tok, ok := ts.Get(user)
			if !ok {
				return fmt.Errorf("no stored token for %s; use `token add` or `adduser`", user)
			}
			entries, _ := cmd.Flags().GetInt("entries")
			out := cmd.OutOrStdout()
			if path, _ := cmd.Flags().GetString("out"); path != "" && path != "-" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			_, err = c.Get(cmd.Context(), user, tok, entries, out)
			return err
		},
	}
	cmd.Flags().IntP("entries", "n", 0, "only the last n entries (like tail -n)")
	cmd.Flags().StringP("out", "o", "-", "write to file instead of stdout")
	return cmd
}

func newTokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{Use: "token", Short: "Manage stored tokens"}

	show := &cobra.Command{
		Use:   "show [user]",
		Short: "Show the stored token for a user, or list users with tokens",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, ts, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				for _, u := range ts.Users() {
					fmt.Fprintln(cmd.OutOrStdout(), u)
				}
				return nil
			}
			tok, ok := ts.Get(args[0])
			if !ok {
				return fmt.Errorf("no stored token for %s", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <user> <token>",
		Short: "Store a token for a user (not validated)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, ts, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			force, _ := cmd.Flags().GetBool("force")
			if err := ts.Put(args[0], args[1], force); err != nil {
				return err
			}
			return ts.Save()
		},
	}
	add.Flags().BoolP("force", "f", false, "overwrite an existing token")

	del := &cobra.Command{
		Use:   "delete [user]",
		Short: "Forget a stored token; it cannot be recovered afterwards",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, ts, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			all, _ := cmd.Flags().GetBool("all")
			switch {
			case all:
				ts.DeleteAll()
			case len(args) == 1:
				if !ts.Delete(args[0]) {
					return fmt.Errorf("no stored token for %s", args[0])
				}
			default:
				return errors.New("name a user or pass --all")
			}
			return ts.Save()
		},
	}
	del.Flags().Bool("all", false, "delete every stored token")

	tokenCmd.AddCommand(show, add, del)
	return tokenCmd
}
