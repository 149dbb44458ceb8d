package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/cutover/internal/config"
	"github.com/mrz1836/cutover/internal/tui"
)

// maskedValue replaces secrets in displayed configuration.
const maskedValue = "********"

// AddConfigCommand adds the config command group to the root command.
func AddConfigCommand(root *cobra.Command, flags *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect cutover configuration",
	}
	cmd.AddCommand(newConfigShowCmd(flags))
	root.AddCommand(cmd)
}

func newConfigShowCmd(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration",
		Long: `Display the effective configuration after merging defaults,
~/.cutover/config.yaml, the project or --config file and CUTOVER_* environment
variables.

Secrets (redis password, pager routing key, webhook credentials) are masked.

Examples:
  cutover config show
  cutover config show -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}
}

func runConfigShow(ctx context.Context, w io.Writer, flags *GlobalFlags) error {
	cfg, err := config.Load(GetLogger().WithContext(ctx), flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg = redactConfig(cfg)

	if flags.Output == tui.FormatJSON {
		return tui.NewOutput(w, flags.Output).JSON(cfg)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}

// redactConfig returns a copy of cfg with secrets masked.
func redactConfig(cfg *config.Config) *config.Config {
	c := *cfg
	if c.Lease.Redis.Password != "" {
		c.Lease.Redis.Password = maskedValue
	}
	if c.Notifications.PagerRoutingKey != "" {
		c.Notifications.PagerRoutingKey = maskedValue
	}
	c.Notifications.WebhookURL = redactURL(c.Notifications.WebhookURL)
	c.Notifications.PagerURL = redactURL(c.Notifications.PagerURL)
	return &c
}

// redactURL masks user info and query values, which chat webhooks commonly
// use to carry tokens.
func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return maskedValue
	}
	if u.User != nil {
		u.User = url.User(maskedValue)
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q.Set(k, maskedValue)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
