package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// deleteCmd は保存済みの漫画を削除するのだ。
var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "保存済みの漫画を削除するのだ",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer m.Close()

		if err := m.DeleteComic(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("漫画の削除に失敗したのだ: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s を削除したのだ。\n", args[0])
		return nil
	},
}

// stylesCmd は使える画風のプリセットを表示するのだ。
var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "使える画風のプリセットを表示するのだ",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer m.Close()

		for _, name := range m.StyleNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}
