package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"carerules/internal/assets"
)

func assetsCmd(opts *hostOptions) *cobra.Command {
	c := &cobra.Command{
		Use:   "assets",
		Short: "Manage reference data assets read by rules",
	}

	c.AddCommand(assetsListCmd(opts), assetsPutCmd(opts), assetsGetCmd(opts), assetsDeleteCmd(opts))
	return c
}

func openAssets(ctx context.Context, opts *hostOptions) (assets.Store, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return assets.Open(ctx, cfg)
}

func assetsListCmd(opts *hostOptions) *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openAssets(cmd.Context(), opts)
			if err != nil {
				return err
			}
			infos, err := store.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "(no assets found)")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tTYPE")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Key, info.Size, info.ContentType)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Only list keys with this prefix")
	return cmd
}

func assetsPutCmd(opts *hostOptions) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "put <key> <file>",
		Short: "Upload a reference data file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openAssets(cmd.Context(), opts)
			if err != nil {
				return err
			}
			f, err := os.Open(args[1]) // #nosec G304 -- operator-supplied upload path
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			if replace {
				if _, err := store.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
			}
			info, err := store.Put(cmd.Context(), args[0], f, assets.PutOptions{ContentType: contentType(args[1])})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s (%d bytes)\n", info.Key, info.Size)
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Overwrite an existing asset")
	return cmd
}

func assetsGetCmd(opts *hostOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print an asset the way rules load it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openAssets(cmd.Context(), opts)
			if err != nil {
				return err
			}
			data, err := assets.NewLoader(store).LoadDataAsset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func assetsDeleteCmd(opts *hostOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openAssets(cmd.Context(), opts)
			if err != nil {
				return err
			}
			removed, err := store.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("asset %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "application/yaml"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
