package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/area/internal/catalog"
	"github.com/roach88/area/internal/ir"
)

// NewCatalogCommand creates the catalog command group. Catalog queries need
// no database.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Query the trigger and reaction vocabulary",
	}

	query := func(use, short string, args cobra.PositionalArgs, fn func(*catalog.Catalog, []string) (any, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, argv []string) error {
				cat, err := catalog.Default()
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to compile vocabulary", err)
				}
				data, err := fn(cat, argv)
				if err != nil {
					_ = formatter(rootOpts, cmd).Error("not_found", err.Error(), nil)
					return WrapExitError(ExitFailure, "catalog query failed", err)
				}
				return formatter(rootOpts, cmd).Success(data)
			},
		}
	}

	cmd.AddCommand(
		query("services", "List every service", cobra.NoArgs,
			func(c *catalog.Catalog, _ []string) (any, error) { return c.Services(), nil }),
		query("triggers <service>", "List the triggers a service emits", cobra.ExactArgs(1),
			func(c *catalog.Catalog, args []string) (any, error) { return c.TriggersOf(args[0]) }),
		query("reactions [service]", "List reactions, of every tier or of one service", cobra.MaximumNArgs(1),
			func(c *catalog.Catalog, args []string) (any, error) {
				if len(args) == 0 {
					return c.Reactions(), nil
				}
				return c.ReactionsOf(args[0])
			}),
		query("trigger-params <trigger>", "Show the parameter schema of a trigger", cobra.ExactArgs(1),
			func(c *catalog.Catalog, args []string) (any, error) {
				spec, err := c.Trigger(args[0])
				return fieldsOrEmpty(spec.Fields), err
			}),
		query("reaction-params <reaction>", "Show the parameter schema of a reaction", cobra.ExactArgs(1),
			func(c *catalog.Catalog, args []string) (any, error) {
				spec, err := c.Reaction(args[0])
				return fieldsOrEmpty(spec.Fields), err
			}),
	)
	return cmd
}

func fieldsOrEmpty(fields []ir.Field) []ir.Field {
	if fields == nil {
		return []ir.Field{}
	}
	return fields
}
