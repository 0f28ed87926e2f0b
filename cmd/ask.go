package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var showSources bool

var askCmd = &cobra.Command{
	Use:   "ask <document-name> <question...>",
	Short: "Ask a question about an ingested document",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&showSources, "sources", false, "print the chunks the answer was grounded on")
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.service.Ask(cmd.Context(), args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, answer.Text)
	if showSources {
		for _, s := range answer.Sources {
			fmt.Fprintf(out, "  chunk %d (pages %v) score %.4f\n", s.ChunkIndex, s.PageNumbers, s.Score)
		}
	}
	return nil
}
