package main

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/hamed0406/poolwatch/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file and report what would be monitored",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "✖", err)
			return err
		}
		preflight(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg)
		return nil
	},
}

// preflight prints ✔ lines for settled facts and ⚠ lines for settings
// that are valid but probably not what production wants.
func preflight(out, errOut io.Writer, cfg config.Config) {
	ok := func(format string, a ...any) { fmt.Fprintf(out, "✔ "+format+"\n", a...) }
	warn := func(format string, a ...any) { fmt.Fprintf(errOut, "⚠ "+format+"\n", a...) }

	pools := 0
	remediated := 0
	for _, w := range cfg.Webs {
		pools += len(w.Pools)
		if w.Remediate {
			remediated++
		}
	}
	ok("%d web targets (%d with remediation), %d pools", len(cfg.Webs), remediated, pools)
	ok("%d stratum targets", len(cfg.Stratums))
	ok("schedule %q in %s, %d attempts per target", cfg.Schedule, cfg.Location(), cfg.MaxRetry)

	if _, err := exec.LookPath(cfg.Remediation.Command[0]); err != nil {
		warn("remediation command %q not found in PATH; restarts will fail", cfg.Remediation.Command[0])
	} else {
		ok("remediation command %v", cfg.Remediation.Command)
	}
	if cfg.InsecureSkipVerify {
		warn("insecure_skip_verify is on; web probes accept any TLS certificate")
	}
	if cfg.Notify.SlackWebhook == "" {
		warn("notify.slack_webhook is empty; summaries go to the log only")
	}

	if cfg.HTTP.Addr == "" {
		ok("status API disabled")
		return
	}
	ok("status API on %s", cfg.HTTP.Addr)
	if len(cfg.HTTP.AdminKeys) == 0 {
		warn("http.admin_keys is empty; POST /api/cycles will 403")
	}
	if len(cfg.HTTP.PublicKeys) == 0 && len(cfg.HTTP.AdminKeys) == 0 {
		warn("no API keys configured; read routes are open")
	}
}
