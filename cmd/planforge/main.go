package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"planforge/internal/config"
)

var (
	configPath string
	userID     string
	jsonOutput bool
	cmdTimeout time.Duration

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "planforge",
	Short: "planforge - conversational account-plan research agent",
	Long: `planforge researches companies and turns what it finds into structured
account plans: live web search, deep scraping, conflict detection across
sources, and section-by-section plan generation.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var researchCmd = &cobra.Command{
	Use:   "research [company]",
	Short: "Research a company and print its account plan",
	Long: `Runs the full research pipeline for one company and prints the
generated account plan. Conflicting source data is resolved automatically
in favor of the most credible values.

Example:
  planforge research "Acme Corporation"
  planforge research Globex --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Inspect stored account plans",
}

var planShowCmd = &cobra.Command{
	Use:   "show [company]",
	Short: "Show the most recent stored plan for a company",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanShow,
}

var planDeleteCmd = &cobra.Command{
	Use:   "delete [session-id]",
	Short: "Delete the stored plan for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanDelete,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and storage status",
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "planforge.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "cli", "User id for plan storage")
	rootCmd.PersistentFlags().DurationVar(&cmdTimeout, "timeout", 10*time.Minute, "Operation timeout")

	researchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the plan as JSON instead of rendered markdown")
	planShowCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the plan as JSON instead of rendered markdown")

	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planDeleteCmd)

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runResearch performs a one-shot research run and prints the plan.
func runResearch(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	company := strings.Join(args, " ")
	fmt.Fprintf(os.Stderr, "Researching %s...\n", company)

	sessionID := a.sessions.Create("")
	sess := a.sessions.Get(sessionID)
	sess.UserID = userID

	resp, err := a.process("Research "+company+" and skip conflicts", sessionID)
	if err != nil {
		return fmt.Errorf("research failed: %w", err)
	}
	for _, p := range resp.Progress {
		fmt.Fprintf(os.Stderr, "  %s\n", p)
	}
	if resp.Plan == nil {
		return fmt.Errorf("no plan produced: %s", resp.Text)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(resp.Plan, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	out, err := renderPlan(resp.Plan)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// runPlanShow loads and prints a stored plan.
func runPlanShow(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()

	p, err := a.planStore.Load(ctx, userID, "", args[0])
	if err != nil {
		return fmt.Errorf("loading plan for %q: %w", args[0], err)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	out, err := renderPlan(p)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// runPlanDelete removes a stored plan.
func runPlanDelete(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()

	if err := a.planStore.Delete(ctx, userID, args[0]); err != nil {
		return fmt.Errorf("deleting plan: %w", err)
	}
	fmt.Printf("Plan for session %s deleted.\n", args[0])
	return nil
}

// runStatus prints configuration and storage health.
func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("planforge status")
	fmt.Println("================")
	fmt.Printf("Config:     %s\n", configPath)
	fmt.Printf("LLM model:  %s\n", cfg.LLM.Model)
	fmt.Printf("Embedding:  %s (%d dims)\n", cfg.Embedding.Model, cfg.Embedding.Dimensions)
	fmt.Println()

	if cfg.LLM.APIKey != "" || os.Getenv("GEMINI_API_KEY") != "" {
		fmt.Println("+ Gemini API key configured")
	} else {
		fmt.Println("- Gemini API key not configured (plans will use fallback text)")
	}
	if cfg.Search.APIKey != "" || os.Getenv("SERPER_API_KEY") != "" {
		fmt.Println("+ Serper API key configured")
	} else {
		fmt.Println("- Serper API key not configured (web search disabled)")
	}

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := a.vectors.Count(ctx)
	if err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	fmt.Printf("+ Vector store: %s (%d chunks)\n", cfg.Storage.VectorDBPath, n)
	fmt.Printf("+ Plan store:   %s\n", cfg.Storage.PlanDBPath)
	fmt.Printf("+ Active jobs:  %d\n", a.router.ActiveCount())
	return nil
}
