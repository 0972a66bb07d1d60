package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/internal/service/intent"
	"github.com/sandevgo/brain/internal/service/ui"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <message>",
	Short: "Show how a message would be routed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		c := intent.NewRouter().Explain(text)
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, ui.TitleStyle.Render("INTENT")+" "+ui.UsageStyle.Render(c.Intent.String()))

		intents := make([]core.Intent, 0, len(c.Scores))
		for in := range c.Scores {
			intents = append(intents, in)
		}
		sort.Slice(intents, func(i, j int) bool { return c.Scores[intents[i]] > c.Scores[intents[j]] })
		for _, in := range intents {
			fmt.Fprintf(out, "  %-18s %s\n", in, ui.DescStyle.Render(fmt.Sprintf("%.2f", c.Scores[in])))
		}
		if len(c.Matched) > 0 {
			fmt.Fprintln(out, ui.FlagStyle.Render("matched: "+strings.Join(c.Matched, ", ")))
		}

		if c.Intent.RequiresProvider() {
			now := time.Now()
			d := intent.Extract(text, now)
			fmt.Fprintf(out, "  title: %q\n", d.Title)
			switch {
			case d.HasTime:
				fmt.Fprintf(out, "  at:    %s\n", d.At(now).Format(time.RFC1123))
			case d.Date != nil:
				fmt.Fprintf(out, "  on:    %s\n", d.Date.Format(time.DateOnly))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
