package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// listCmd は保存済みの漫画を新しい順に並べるのだ。
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "保存済みの漫画を新しい順に表示するのだ",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer m.Close()

		comics, err := m.ListComics(cmd.Context())
		if err != nil {
			return fmt.Errorf("一覧の取得に失敗したのだ: %w", err)
		}
		if len(comics) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "保存された漫画はまだ無いのだ。")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTYLE\tPANELS\tIMAGES\tCREATED")
		for _, c := range comics {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				c.ID, c.Title, c.Style, c.PanelCount, c.ImageCount, c.CreatedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}
