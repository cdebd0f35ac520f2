package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"interview-agent/internal/bootstrap"
	"interview-agent/internal/llm"
	"interview-agent/internal/search"
)

const checkTimeout = 60 * time.Second

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify LLM and search credentials with one small call each",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			engine, err := bootstrap.BuildEngine(cfg, nil)
			if err != nil {
				return err
			}

			callCtx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
			defer cancel()

			llmErr := checkLLM(callCtx, engine.LLM)
			searchErr := checkSearch(callCtx, engine.Search)
			rows := [][]string{
				{"llm", cfg.LLMModel, checkStatus(llmErr)},
				{"search", "tavily", checkStatus(searchErr)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Upstream", "Target", "Status"}, rows, nil))
			fmt.Fprintln(cmd.OutOrStdout(), gateStatsTable(engine.Gate.Stats()))
			return errors.Join(llmErr, searchErr)
		},
	}
}

func checkLLM(ctx context.Context, gen llm.Generator) error {
	_, err := gen.Generate(ctx, llm.Request{
		Prompt:      "Reply with the single word: ok",
		Temperature: llm.Temp(0),
		MaxTokens:   5,
	})
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	return nil
}

func checkSearch(ctx context.Context, s search.Searcher) error {
	if _, err := s.Search(ctx, "software engineer interview questions", 1, search.DepthBasic); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	return nil
}

func checkStatus(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}
