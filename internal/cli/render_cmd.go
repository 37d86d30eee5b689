package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pixelmap/internal/genimage"
	"pixelmap/internal/pipeline"
)

// newRenderCmd generates a sprite for one photo without a server, useful
// for trying prompts and inspecting the transparency pass.
func newRenderCmd(root *Root) *cobra.Command {
	var (
		location string
		prompt   string
		out      string
	)

	cmd := &cobra.Command{
		Use:   "render <photo>",
		Short: "Generate a pixel-art sprite from one photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.cfg.Generate.APIKey == "" {
				return fmt.Errorf("generate.api_key is not configured (set GENERATE_API_KEY)")
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			finalPrompt := prompt
			if finalPrompt == "" {
				finalPrompt = genimage.PhotoPrompt(location)
			}

			gen := genimage.New(root.cfg.Generate.Endpoint, root.cfg.Generate.APIKey, root.cfg.Generate.Model)

			ctx, cancel := signalContext()
			defer cancel()

			pipe := pipeline.New(ctx, 1, gen, root.log)
			defer pipe.Stop()
			results, unsub := pipe.Subscribe()
			defer unsub()

			err = pipe.Submit(pipeline.Job{
				ID:       "render",
				MemoryID: 1,
				Token:    1,
				Image:    data,
				MimeType: mimeForPath(args[0]),
				Prompt:   finalPrompt,
			})
			if err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case res := <-results:
				if res.Error != nil {
					return res.Error
				}
				if out == "" {
					base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
					out = base + "-sprite.png"
				}
				if err := os.WriteFile(out, res.Sprite.PNG, 0o644); err != nil {
					return err
				}
				fmt.Printf("Sprite written to %s (%dx%d, content %v)\n",
					out, res.Sprite.Width, res.Sprite.Height, res.Sprite.Bounds)
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&location, "location", "", "location name folded into the prompt")
	cmd.Flags().StringVar(&prompt, "prompt", "", "override the full generation prompt")
	cmd.Flags().StringVar(&out, "out", "", "output PNG path")
	return cmd
}

func mimeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
