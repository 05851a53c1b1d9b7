package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"carerules/internal/core"
)

func rulesCmd(opts *hostOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List installed rule packs, rule chains and validators",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			engine, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			return printRules(cmd.OutOrStdout(), engine)
		},
	}
}

func printRules(w io.Writer, engine *core.Engine) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLUGIN\tVERSION\tRULES\tVALIDATORS")
	for _, p := range engine.RegisteredPlugins() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", p.Name, p.Version, p.Rules, p.Validators)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "TYPE\tTRIGGER\tHANDLERS")
	for _, typ := range engine.EntityTypes() {
		for _, trigger := range engine.Triggers(typ) {
			for _, r := range engine.Rules(typ, trigger) {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", typ, trigger, r.Name())
			}
		}
		for _, v := range engine.Validators(typ) {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", typ, "validator", v.Name())
		}
	}
	return tw.Flush()
}
