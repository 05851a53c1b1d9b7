package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"carerules/internal/core"
	"carerules/pkg/domain"
)

type commitOutput struct {
	Object *domain.Object `json:"object,omitempty"`
	Issues domain.Issues  `json:"issues"`
}

func insertCmd(opts *hostOptions) *cobra.Command {
	return commitCmd(opts, "insert", "Validate, dispatch Before/AfterInsert and save a new object",
		func(svc *core.Service, cmd *cobra.Command, obj *domain.Object) (core.Commit, error) {
			return svc.Insert(cmd.Context(), obj)
		})
}

func updateCmd(opts *hostOptions) *cobra.Command {
	return commitCmd(opts, "update", "Validate, dispatch Before/AfterUpdate and save an existing object",
		func(svc *core.Service, cmd *cobra.Command, obj *domain.Object) (core.Commit, error) {
			return svc.Update(cmd.Context(), obj)
		})
}

func commitCmd(opts *hostOptions, use, short string, run func(*core.Service, *cobra.Command, *domain.Object) (core.Commit, error)) *cobra.Command {
	var file string

	c := &cobra.Command{
		Use:   use,
		Short: short,
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

			res, err := run(h.service, cmd, obj)
			var blocked domain.IssueBlockError
			if err != nil && !errors.As(err, &blocked) {
				return err
			}
			if werr := writeJSON(cmd.OutOrStdout(), commitOutput{Object: res.Object, Issues: res.Issues}); werr != nil {
				return werr
			}
			return err
		},
	}

	c.Flags().StringVarP(&file, "file", "f", "-", "Object JSON or YAML file (- for stdin)")
	return c
}

func getCmd(opts *hostOptions) *cobra.Command {
	var query string

	c := &cobra.Command{
		Use:   "get <id>",
		Short: "Load an object and run its AfterRetrieve rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHost(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			obj, err := h.service.Retrieve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), obj, query)
		},
	}

	c.Flags().StringVarP(&query, "query", "q", "", "Print only the JSONPath selection of the object")
	return c
}
