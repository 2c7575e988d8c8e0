package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/clipd-io/clipd/internal/daemon"
	"github.com/clipd-io/clipd/internal/engine"
	"github.com/clipd-io/clipd/internal/remote"
	"github.com/clipd-io/clipd/internal/store"
	"github.com/clipd-io/clipd/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Run the capture daemon",
	Long: `Run the capture daemon for a namespace.

The daemon:
  - polls the OS clipboard and captures new text
  - watches the inbox directory for dropped clip files
  - when server_url is configured, streams remote events in and
    pushes local changes out

Runs until interrupted (Ctrl-C / SIGTERM).`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		logWriter := io.Writer(os.Stderr)
		if cfg.LogFile != "" {
			logWriter = &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    10, // MB
				MaxBackups: 3,
				MaxAge:     14, // days
				Compress:   true,
			}
		}
		newLogger := func(prefix string) *log.Logger {
			return log.New(logWriter, prefix, log.LstdFlags)
		}

		st, err := store.OpenSQLite(cfg.DBPath, teamFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		engCfg := engine.DefaultConfig()
		engCfg.Namespace = teamFlag
		engCfg.Logger = newLogger("[engine] ")

		eng, err := engine.New(st, engCfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading clips: %v\n", err)
			os.Exit(1)
		}
		if cfg.Incognito {
			eng.SetIncognito(true)
			fmt.Printf("%s Incognito mode: automatic captures suppressed\n", ui.RenderWarn("⚠"))
		}

		// Backend sync is optional; without it the daemon is local-only.
		if cfg.ServerURL != "" {
			clientCfg := remote.DefaultClientConfig()
			clientCfg.URL = cfg.ServerURL
			clientCfg.Namespace = teamFlag
			clientCfg.Logger = newLogger("[remote] ")
			clientCfg.OnStatus = func(s remote.Status) {
				clientCfg.Logger.Printf("Connection status: %s", s)
			}

			client, err := remote.NewClient(eng, clientCfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating sync client: %v\n", err)
				os.Exit(1)
			}

			oplogCfg := remote.DefaultOpLogConfig()
			oplogCfg.QueueSize = cfg.OpQueueSize
			oplogCfg.MaxAttempts = cfg.OpMaxAttempts
			oplogCfg.RetryDelay = cfg.OpRetryDelay
			oplogCfg.Logger = newLogger("[oplog] ")
			oplogCfg.OnAcked = eng.MarkSynced
			oplogCfg.OnFailed = func(id string, err error) { eng.MarkSyncFailed(id) }

			oplog, err := remote.NewOpLog(client, oplogCfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating op log: %v\n", err)
				os.Exit(1)
			}

			eng.SetOutbound(oplog)

			client.Start()
			defer client.Stop()
			oplog.Start()
			defer oplog.Stop()

			fmt.Printf("%s Syncing with %s\n", ui.RenderAccent("🔄"), cfg.ServerURL)
		}

		var source daemon.Source
		if cfg.PasteCommand != "" {
			fields := strings.Fields(cfg.PasteCommand)
			source = daemon.NewCommandSource(fields[0], fields[1:]...)
		}

		dcfg := daemon.DefaultConfig()
		dcfg.PollInterval = cfg.PollInterval
		dcfg.DebounceInterval = cfg.DebounceInterval
		dcfg.InboxDir = cfg.InboxDir
		dcfg.Logger = newLogger("[daemon] ")

		d, err := daemon.New(eng, source, dcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ns := teamFlag
		if ns == "" {
			ns = "personal"
		}
		fmt.Printf("%s Watching clipboard (%s namespace, %d clips)\n",
			ui.RenderPass("✓"), ns, eng.Len())

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
