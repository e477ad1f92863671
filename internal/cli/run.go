package cli

import (
	"fmt"

	"github.com/harun/actionserver/internal/daemon"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Aliases: []string{"start"},
	Short:   "Start the action server",
	Long: `Start the action server in the foreground.
Actions are loaded from manifest files in the actions directory. The server
runs until it receives SIGINT or SIGTERM.`,
	RunE: runServer,
}

func init() {
	flags := runCmd.Flags()
	flags.IntP("port", "p", 5055, "port to run the server on")
	flags.StringSlice("cors", nil, "enable CORS for the given origins, use * to allow all")
	flags.String("actions", "actions", "directory with action manifests")
	flags.Bool("auto-reload", false, "reload actions before every request")
	flags.Bool("watch", false, "reload actions when the actions directory changes")
	flags.Int("rate-limit", 0, "webhook requests per minute per client, 0 disables")
	flags.String("ssl-certificate", "", "certificate for HTTPS")
	flags.String("ssl-keyfile", "", "private key for the certificate")
	flags.String("ssl-password", "", "password for an encrypted private key")

	mustBind("server.port", flags.Lookup("port"))
	mustBind("server.cors_origins", flags.Lookup("cors"))
	mustBind("actions.dir", flags.Lookup("actions"))
	mustBind("server.auto_reload", flags.Lookup("auto-reload"))
	mustBind("actions.watch", flags.Lookup("watch"))
	mustBind("server.rate_limit", flags.Lookup("rate-limit"))
	mustBind("server.ssl_certificate", flags.Lookup("ssl-certificate"))
	mustBind("server.ssl_keyfile", flags.Lookup("ssl-keyfile"))
	mustBind("server.ssl_password", flags.Lookup("ssl-password"))

	rootCmd.AddCommand(runCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		return err
	}

	return d.Wait()
}
