package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Long: `Create or upgrade the database schema and print its version. Opening a
store applies the schema, so every other command migrates as well; this
one does nothing else.

Example:
  area migrate --db ./area.db
  area migrate --db postgres://area@localhost/area?sslmode=disable`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			version, err := a.store.SchemaVersion(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read schema version", err)
			}
			return formatter(rootOpts, cmd).Success(fmt.Sprintf("%s schema at version %d", a.store.Driver(), version))
		},
	}
}
