package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"carerules/pkg/domain"
)

type dispatchOutput struct {
	Trigger     string         `json:"trigger"`
	Transformed bool           `json:"transformed"`
	Mutated     bool           `json:"mutated"`
	Object      *domain.Object `json:"object"`
}

func dispatchCmd(opts *hostOptions) *cobra.Command {
	var file string
	var trigger string
	var hydrate bool
	var query string

	c := &cobra.Command{
		Use:   "dispatch",
		Short: "Run the rule chain for an object and trigger without saving",
		RunE: func(cmd *cobra.Command, _ []string) error {
			obj, err := readObject(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			h, err := openHost(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			if hydrate {
				if obj, err = h.service.Hydrate(cmd.Context(), obj, h.cfg.SimplifyDepth); err != nil {
					return err
				}
			}
			out, err := h.service.Apply(cmd.Context(), trigger, obj)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), dispatchOutput{
				Trigger:     trigger,
				Transformed: out.Transformed,
				Mutated:     out.Mutated,
				Object:      out.Object,
			}, query)
		},
	}

	c.Flags().StringVarP(&file, "file", "f", "-", "Object JSON or YAML file (- for stdin)")
	c.Flags().StringVarP(&trigger, "trigger", "t", "", "Trigger name, e.g. AfterInsert (required)")
	c.Flags().BoolVar(&hydrate, "hydrate", true, "Resolve references from the repository first")
	c.Flags().StringVarP(&query, "query", "q", "", "Print only the JSONPath selection of the output")
	_ = c.MarkFlagRequired("trigger")
	return c
}

type validateOutput struct {
	Issues   domain.Issues `json:"issues"`
	Blocking bool          `json:"blocking"`
}

func validateCmd(opts *hostOptions) *cobra.Command {
	var file string
	var failOnBlock bool
	var query string

	c := &cobra.Command{
		Use:   "validate",
		Short: "Run validators for an object and print detected issues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			obj, err := readObject(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			h, err := openHost(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			hydrated, err := h.service.Hydrate(cmd.Context(), obj, h.cfg.SimplifyDepth)
			if err != nil {
				return err
			}
			issues, err := h.service.Validate(cmd.Context(), hydrated)
			if err != nil {
				return err
			}
			blocking := issues.AtOrAbove(h.service.BlockingPriority())
			if err := writeResult(cmd.OutOrStdout(), validateOutput{Issues: issues, Blocking: len(blocking) > 0}, query); err != nil {
				return err
			}
			if failOnBlock && len(blocking) > 0 {
				return fmt.Errorf("%d blocking issue(s): %v", len(blocking), blocking.Texts())
			}
			return nil
		},
	}

	c.Flags().StringVarP(&file, "file", "f", "-", "Object JSON or YAML file (- for stdin)")
	c.Flags().BoolVar(&failOnBlock, "fail-on-block", false, "Exit non-zero when an issue reaches the blocking priority")
	c.Flags().StringVarP(&query, "query", "q", "", "Print only the JSONPath selection of the output")
	return c
}
