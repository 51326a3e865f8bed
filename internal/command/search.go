package command

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgard/chatmirror/internal/database"
	"github.com/edgard/chatmirror/internal/search"
)

const timeLayout = "2006-01-02 15:04"

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <terms...>",
		Short: "Search mirrored messages, newest first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := a.Config.Search.Location()
			if err != nil {
				return err
			}
			c := search.Criteria{Terms: strings.Join(args, " ")}
			c.GroupID, _ = cmd.Flags().GetInt64("group")
			if cmd.Flags().Changed("sender") {
				sender, _ := cmd.Flags().GetInt64("sender")
				c.Sender = &sender
			}
			startRaw, _ := cmd.Flags().GetString("start")
			if c.Start, err = search.ParseBound(startRaw, false, loc); err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			endRaw, _ := cmd.Flags().GetString("end")
			if c.End, err = search.ParseBound(endRaw, true, loc); err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}

			res, err := a.Engine.Search(cmd.Context(), c)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return json.NewEncoder(out).Encode(res)
			}
			if len(res.Messages) == 0 {
				fmt.Fprintln(out, "No messages found")
				return nil
			}
			for _, m := range res.Messages {
				fmt.Fprintln(out, formatHit(res.Groups, m, loc))
			}
			return nil
		},
	}
	cmd.Flags().Int64("group", 0, "only search this group id")
	cmd.Flags().Int64("sender", 0, "only messages from this user id")
	cmd.Flags().String("start", "", "window start (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().String("end", "", "window end (RFC3339 or YYYY-MM-DD, inclusive day)")
	cmd.Flags().Bool("json", false, "output in JSON format")
	return cmd
}

func formatHit(groups map[int64]string, m database.SearchRow, loc *time.Location) string {
	sender := m.FromUserName.String
	if sender == "" {
		sender = "?"
	}
	title := groups[m.GroupID]
	if title == "" {
		title = fmt.Sprint(m.GroupID)
	}
	return fmt.Sprintf("%s  [%s] #%d %s: %s", m.CreatedAt.In(loc).Format(timeLayout), title, m.MsgID, sender, oneLine(m.Text))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
