package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	errx "github.com/SolveWise/server/internal/core/error"
	"github.com/SolveWise/server/internal/server"
	"github.com/SolveWise/server/internal/solver/model"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			httpCfg := a.cfg.HTTP
			httpCfg.Environment = a.env
			httpCfg.DefaultAPIKey = a.cfg.Provider.APIKey
			return server.New(httpCfg, a.runner, a.history).Run(cmd.Context())
		},
	}
}

func newSolveCmd() *cobra.Command {
	var (
		imagePath      string
		conversationID string
		withChart      bool
	)

	cmd := &cobra.Command{
		Use:   "solve [question]",
		Short: "Answer a question, typed or photographed",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			apiKey := a.cfg.Provider.APIKey
			if apiKey == "" {
				return fmt.Errorf("GEMINI_API_KEY is not set")
			}

			in := model.SolveInput{
				APIKey:         apiKey,
				ConversationID: conversationID,
				Query:          strings.Join(args, " "),
			}
			if imagePath != "" {
				in.Image, err = os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("read image: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			result, err := a.runner.Solve(cmd.Context(), in)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), errx.MessageOf(err))
				return err
			}
			printAnswer(out, result)

			if withChart {
				chart, err := a.runner.Chart(cmd.Context(), model.ChartInput{
					APIKey:         apiKey,
					ConversationID: result.ConversationID,
				})
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), errx.MessageOf(err))
					return err
				}
				printAnswer(out, chart)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "path to a photo of the question")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "continue an earlier conversation")
	cmd.Flags().BoolVar(&withChart, "chart", false, "also request a chart for the answer")
	return cmd
}

func newModelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "model",
		Short: "Show the model that would answer first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			name, err := a.runner.CurrentModel(cmd.Context(), a.cfg.Provider.APIKey)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	history := &cobra.Command{
		Use:   "history",
		Short: "Inspect conversations saved under GEMINI_API_KEY",
	}

	history.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved conversations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.history.ListItems(cmd.Context(), model.OwnerKey(a.cfg.Provider.APIKey))
			if err != nil {
				return err
			}
			for _, it := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
					it.ID,
					it.Type,
					time.UnixMilli(it.Timestamp).Format(time.DateTime),
					oneLine(it.Question, 60),
				)
			}
			return nil
		},
	})

	history.AddCommand(&cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.history.DeleteItem(cmd.Context(), model.OwnerKey(a.cfg.Provider.APIKey), args[0])
		},
	})

	return history
}

func printAnswer(w io.Writer, r *model.AnswerResult) {
	fmt.Fprintf(w, "[%s] conversation %s\n\n%s\n", r.Model, r.ConversationID, r.Explanation)
	if r.ChartCode != "" {
		fmt.Fprintf(w, "\n--- chart ---\n%s\n", r.ChartCode)
	}
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
