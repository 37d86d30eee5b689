package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the active configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Run: func(cmd *cobra.Command, args []string) {
			root.configShow()
		},
	})
	return cmd
}

func (r *Root) configShow() {
	cfgPath := os.Getenv("PIXELMAP_CONFIG")
	if cfgPath == "" {
		cfgPath = "(default) ~/.config/pixelmap/config.json"
	}
	fmt.Printf("Config file: %s\n", cfgPath)
	fmt.Printf("\nServer:\n")
	fmt.Printf("  Addr: %s\n", r.cfg.Server.Addr)
	fmt.Printf("\nPaths:\n")
	fmt.Printf("  Database: %s\n", r.cfg.Paths.DatabasePath)
	fmt.Printf("  Export dir: %s\n", r.cfg.Paths.ExportDir)
	fmt.Printf("\nAuth:\n")
	fmt.Printf("  Passkey service: %s\n", orUnset(r.cfg.Auth.PasskeyURL))
	fmt.Printf("\nGeocode:\n")
	fmt.Printf("  Base URL: %s\n", r.cfg.Geocode.BaseURL)
	fmt.Printf("  Language: %s\n", r.cfg.Geocode.Language)
	fmt.Printf("\nGenerate:\n")
	fmt.Printf("  Endpoint: %s\n", r.cfg.Generate.Endpoint)
	fmt.Printf("  Model: %s\n", r.cfg.Generate.Model)
	fmt.Printf("  Workers: %d\n", r.cfg.Generate.Workers)
	fmt.Printf("  API key: %s\n", maskSecret(r.cfg.Generate.APIKey))
	fmt.Printf("\nWatch:\n")
	fmt.Printf("  Dirs: %v\n", r.cfg.Watch.Dirs)
	fmt.Printf("  Server: %s\n", orUnset(r.cfg.Watch.ServerURL))
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func maskSecret(s string) string {
	if s == "" {
		return "(unset)"
	}
	return "****"
}
