// Package cli wires the pixelmap commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"log/slog"

	"github.com/spf13/cobra"

	"pixelmap/internal/auth"
	"pixelmap/internal/client"
	"pixelmap/internal/config"
	"pixelmap/internal/geocode"
	"pixelmap/internal/server"
	"pixelmap/internal/storage"
	"pixelmap/internal/watch"
)

const version = "1.0.0-dev"

// Root carries shared dependencies into the subcommands.
type Root struct {
	cfg *config.Config
	log *slog.Logger
}

// NewRootCmd creates the root command tree.
func NewRootCmd(cfg *config.Config, log *slog.Logger) *cobra.Command {
	root := &Root{cfg: cfg, log: log}

	rootCmd := &cobra.Command{
		Use:   "pixelmap",
		Short: "pixelmap turns travel photos into pixel-art map memories",
		Long: `pixelmap is the backend and tooling for a travel photo map: photos become
pixel-art sprites placed on a world map, stored per user with passkey auth.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newRenderCmd(root))
	rootCmd.AddCommand(newExportCmd(root))
	rootCmd.AddCommand(newImportCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newServeCmd(root *Root) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pixelmap API server",
		Long: `Start the HTTP API: map and memory CRUD, photo storage, export/import and
the websocket event feed. Authentication is delegated to the configured
passkey service.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.cfg.Auth.PasskeyURL == "" {
				return fmt.Errorf("auth.passkey_url is not configured (set PASSKEY_API_URL)")
			}
			if addr == "" {
				addr = root.cfg.Server.Addr
			}

			store, err := storage.New(root.cfg.Paths.DatabasePath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer store.Close()

			verifier := auth.NewPasskeyVerifier(root.cfg.Auth.PasskeyURL)
			geo := geocode.New(root.cfg.Geocode.BaseURL, root.cfg.Geocode.Language)

			ctx, cancel := signalContext()
			defer cancel()

			srv := server.NewServer(addr, store, verifier, geo, root.log)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func newWatchCmd(root *Root) *cobra.Command {
	var (
		dirs      []string
		serverURL string
		token     string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Auto-import geotagged photos from local directories",
		Long: `Watch directories for new photos. Files with a GPS fix are uploaded to the
default map through the API; files without one are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(dirs) == 0 {
				dirs = root.cfg.Watch.Dirs
			}
			if len(dirs) == 0 {
				return fmt.Errorf("no directories to watch (use --dir)")
			}
			if serverURL == "" {
				serverURL = root.cfg.Watch.ServerURL
			}
			if token == "" {
				token = root.cfg.Watch.Token
			}
			if serverURL == "" || token == "" {
				return fmt.Errorf("--server and --token are required")
			}

			api := client.New(serverURL, token)
			geo := geocode.New(root.cfg.Geocode.BaseURL, root.cfg.Geocode.Language)

			ctx, cancel := signalContext()
			defer cancel()

			errs := make(chan error, len(dirs))
			for _, dir := range dirs {
				w, err := watch.New(dir, api, geo, root.log)
				if err != nil {
					return err
				}
				go func() { errs <- w.Run(ctx) }()
			}

			select {
			case <-ctx.Done():
				return nil
			case err := <-errs:
				return err
			}
		},
	}

	cmd.Flags().StringSliceVar(&dirs, "dir", nil, "directory to watch (repeatable)")
	cmd.Flags().StringVar(&serverURL, "server", "", "pixelmap API base URL")
	cmd.Flags().StringVar(&token, "token", "", "passkey bearer token")
	return cmd
}

func newExportCmd(root *Root) *cobra.Command {
	var (
		serverURL string
		token     string
		mapID     int64
		out       string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download a map as a portable .pixmap file",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := root.apiClient(serverURL, token)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			if mapID == 0 {
				m, err := api.DefaultMap(ctx)
				if err != nil {
					return err
				}
				mapID = m.ID
			}

			raw, err := api.Export(ctx, mapID)
			if err != nil {
				return err
			}

			if out == "" {
				name := fmt.Sprintf("pixelmap-%s.pixmap", time.Now().Format("2006-01-02"))
				out = filepath.Join(root.cfg.Paths.ExportDir, name)
			}
			var pretty json.RawMessage = raw
			buf, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, buf, 0o644); err != nil {
				return err
			}
			fmt.Printf("Exported map %d to %s\n", mapID, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "pixelmap API base URL")
	cmd.Flags().StringVar(&token, "token", "", "passkey bearer token")
	cmd.Flags().Int64Var(&mapID, "map", 0, "map id (default: first map)")
	cmd.Flags().StringVar(&out, "out", "", "output file path")
	return cmd
}

func newImportCmd(root *Root) *cobra.Command {
	var (
		serverURL string
		token     string
		mapID     int64
		clear     bool
	)

	cmd := &cobra.Command{
		Use:   "import <file.pixmap>",
		Short: "Upload a .pixmap file into a map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := root.apiClient(serverURL, token)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if !json.Valid(data) {
				return fmt.Errorf("%s is not valid JSON", args[0])
			}

			ctx, cancel := signalContext()
			defer cancel()

			if mapID == 0 {
				m, err := api.DefaultMap(ctx)
				if err != nil {
					return err
				}
				mapID = m.ID
			}

			res, err := api.Import(ctx, mapID, data, clear)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d memories into map %d\n", res.Imported, mapID)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "pixelmap API base URL")
	cmd.Flags().StringVar(&token, "token", "", "passkey bearer token")
	cmd.Flags().Int64Var(&mapID, "map", 0, "map id (default: first map)")
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the map before importing")
	return cmd
}

func (r *Root) apiClient(serverURL, token string) (*client.Client, error) {
	if serverURL == "" {
		serverURL = r.cfg.Watch.ServerURL
	}
	if token == "" {
		token = r.cfg.Watch.Token
	}
	if serverURL == "" || token == "" {
		return nil, fmt.Errorf("--server and --token are required")
	}
	return client.New(serverURL, token), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pixelmap v%s\n", version)
			fmt.Printf("Built with Go %s\n", runtime.Version())
		},
	}
}
