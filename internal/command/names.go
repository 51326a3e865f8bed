package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewNamesCmd creates the names command.
func NewNamesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "names <text>",
		Short: "Find senders whose name contains text, most recently seen first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			groupID, _ := cmd.Flags().GetInt64("group")
			names, err := a.Engine.FindNames(cmd.Context(), groupID, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return json.NewEncoder(out).Encode(names)
			}
			for _, n := range names {
				fmt.Fprintf(out, "%d\t%s\n", n.UserID, n.Name)
			}
			return nil
		},
	}
	cmd.Flags().Int64("group", 0, "only senders seen in this group id")
	cmd.Flags().Bool("json", false, "output in JSON format")
	return cmd
}

// NewGroupsCmd creates the groups command.
func NewGroupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List mirrored groups and their sync cursors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			groups, err := a.Engine.Groups(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, g := range groups {
				first, last := "-", "-"
				if g.LoadedFirstID.Valid {
					first = fmt.Sprint(g.LoadedFirstID.Int64)
				}
				if g.LoadedLastID.Valid {
					last = fmt.Sprint(g.LoadedLastID.Int64)
				}
				fmt.Fprintf(out, "%d\t%s\t%s..%s\n", g.GroupID, g.Title, first, last)
			}
			return nil
		},
	}
}
