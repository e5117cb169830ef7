package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/AmmannChristian/go-azauthx/internal/tokeninfo"
)

func newTokenCmd(a *app) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "token <audience>",
		Short: "Acquire a token for an audience and describe it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}

			desc, err := reg.Descriptor(args[0])
			if err != nil {
				return err
			}

			token, err := reg.Token(cmd.Context(), desc.Name)
			if err != nil {
				return err
			}

			if raw {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), token.AccessToken.Value())
				return err
			}

			t := newTable(cmd)
			t.AppendHeader(table.Row{"FIELD", "VALUE"})
			t.AppendRow(table.Row{"audience", desc.Name})
			t.AppendRow(table.Row{"scope", desc.Scope})
			t.AppendRow(table.Row{"cache expires", token.ExpiresAt.Format(time.RFC3339)})

			info, err := tokeninfo.Inspect(token.AccessToken.Value())
			switch {
			case errors.Is(err, tokeninfo.ErrOpaqueToken):
				t.AppendRow(table.Row{"claims", "opaque token"})
			case err != nil:
				return err
			default:
				t.AppendRow(table.Row{"token audience", strings.Join(info.Audience, ", ")})
				t.AppendRow(table.Row{"tenant", info.Tenant})
				t.AppendRow(table.Row{"app id", info.AppID})
				if !info.ExpiresAt.IsZero() {
					t.AppendRow(table.Row{"token expires", info.ExpiresAt.UTC().Format(time.RFC3339)})
				}
				if perms := info.Permissions(); len(perms) > 0 {
					t.AppendRow(table.Row{"permissions", strings.Join(perms, " ")})
				}
			}

			t.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print only the bearer token")

	return cmd
}
