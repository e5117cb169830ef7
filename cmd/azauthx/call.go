package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"

	"github.com/AmmannChristian/go-azauthx/registry"
)

func newCallCmd(a *app) *cobra.Command {
	var (
		method string
		data   string
		retry  int
	)

	cmd := &cobra.Command{
		Use:   "call <audience> <path>",
		Short: "Send an authenticated request to an audience",
		Long: `Send an authenticated request to an audience. A relative path is joined
to the audience's base URL; an absolute URL is used as given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}

			desc, err := reg.Descriptor(args[0])
			if err != nil {
				return err
			}
			target := desc.URL(args[1])

			var body io.Reader
			if data != "" {
				body = strings.NewReader(data)
			}
			method = strings.ToUpper(method)

			var resp *http.Response
			if retry > 0 {
				client, err := reg.RetryingClient(desc.Name, registry.RetryPolicy{Max: retry})
				if err != nil {
					return err
				}
				req, err := retryablehttp.NewRequestWithContext(cmd.Context(), method, target, body)
				if err != nil {
					return err
				}
				if body != nil {
					req.Header.Set("Content-Type", "application/json")
				}
				resp, err = client.Do(req)
				if err != nil {
					return err
				}
			} else {
				client, err := reg.Client(desc.Name)
				if err != nil {
					return err
				}
				req, err := http.NewRequestWithContext(cmd.Context(), method, target, body)
				if err != nil {
					return err
				}
				if body != nil {
					req.Header.Set("Content-Type", "application/json")
				}
				resp, err = client.Do(req)
				if err != nil {
					return err
				}
			}
			defer resp.Body.Close()

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintln(out, resp.Status); err != nil {
				return err
			}
			if _, err := io.Copy(out, resp.Body); err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			_, err = fmt.Fprintln(out)
			return err
		},
	}

	cmd.Flags().StringVar(&method, "method", http.MethodGet, "HTTP method")
	cmd.Flags().StringVar(&data, "data", "", "JSON request body")
	cmd.Flags().IntVar(&retry, "retry", 0, "retry transient failures up to N times")

	return cmd
}
