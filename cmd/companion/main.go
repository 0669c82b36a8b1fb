// Package main provides the Companion CLI application entry point.
// Companion is a privacy-focused chat client for locally running language
// models: it keeps conversation history, persists sessions as JSON files,
// and talks to a local model server over HTTP.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"companion/internal/config"
	"companion/internal/llm"
	"companion/internal/logger"
	"companion/internal/session"
	"companion/internal/shell"
	"companion/internal/store"
	"companion/internal/version"
)

var (
	logLevel string
	logFile  string
	envFile  string
)

// rootCmd starts the interactive chat shell when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "companion",
	Short: "Companion - local chat client",
	Long: `Companion is a privacy-focused chat client for locally running language models.
It maintains conversation history, persists sessions as JSON files, and talks
to a local model server (such as LM Studio) over HTTP.`,
	Run: runChat,
}

// chatCmd is the explicit version of the default behavior.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat shell",
	Run:   runChat,
}

// listCmd lists saved conversations and exits.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved conversations",
	Run:   runList,
}

// modelsCmd lists the models known to the model server and exits.
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models on the model server",
	Run:   runModels,
}

// statusCmd checks the model server connection and exits.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check model server status",
	Run:   runStatus,
}

// exportCmd dumps a conversation document to a file and exits.
var exportCmd = &cobra.Command{
	Use:   "export <id> <file>",
	Short: "Export a saved conversation to a file",
	Args:  cobra.ExactArgs(2),
	Run:   runExport,
}

// versionCmd shows version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.GetFormattedVersion())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a custom .env configuration file")

	// Configuration overrides; every flag binds to the matching config key so
	// flags beat environment and .env values
	rootCmd.PersistentFlags().String("base-url", "", "Model server base URL (default: http://localhost:1234/v1)")
	rootCmd.PersistentFlags().String("model", "", "Model name to use")
	rootCmd.PersistentFlags().Float64("temperature", 0.7, "Sampling temperature (0.0 to 2.0)")
	rootCmd.PersistentFlags().Int("max-tokens", 2048, "Maximum tokens to generate")
	rootCmd.PersistentFlags().String("style", "", "Personality style (friend, coach, assistant, custom)")
	rootCmd.PersistentFlags().Int("max-window", 50, "Conversation turns resent to the model per request (0 = unbounded)")
	rootCmd.PersistentFlags().String("sessions-dir", "", "Directory for saved conversations")
	rootCmd.PersistentFlags().Bool("autosave", true, "Automatically save the conversation after each turn")
	rootCmd.PersistentFlags().Bool("debug", false, "Show token usage and generation stats after each reply")

	bindings := map[string]string{
		config.KeyBaseURL:     "base-url",
		config.KeyModel:       "model",
		config.KeyTemperature: "temperature",
		config.KeyMaxTokens:   "max-tokens",
		config.KeyStyle:       "style",
		config.KeyMaxWindow:   "max-window",
		config.KeySessionsDir: "sessions-dir",
		config.KeyAutosave:    "autosave",
		config.KeyDebug:       "debug",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", flag, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	if err := logger.Configure(logLevel, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig builds the merged configuration or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load(envFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}
	return cfg
}

func runChat(_ *cobra.Command, _ []string) {
	cfg := loadConfig()
	logger.Info("Starting Companion", "version", version.GetVersion(), "base_url", cfg.BaseURL, "style", cfg.Style)

	client := llm.NewClient(cfg)

	// A model server that cannot be reached at launch is an unrecoverable
	// startup failure
	health, err := client.HealthCheck(context.Background())
	if err != nil {
		logger.Fatal("Cannot reach model server at startup", "base_url", cfg.BaseURL, "error", err)
	}
	logger.Info("Model server healthy", "models", health.TotalModels, "loaded", len(health.LoadedModels))
	if len(health.LoadedModels) == 0 {
		logger.Warn("No models are loaded on the server; requests may fail")
	}

	manager := session.NewManager(cfg, store.New(cfg.SessionsDir))

	sh, err := shell.New(cfg, manager, client)
	if err != nil {
		logger.Fatal("Failed to initialize shell", "error", err)
	}
	sh.Run()
}

func runList(_ *cobra.Command, _ []string) {
	cfg := loadConfig()
	manager := session.NewManager(cfg, store.New(cfg.SessionsDir))

	summaries, err := manager.ListSummaries()
	if err != nil {
		logger.Fatal("Failed to list conversations", "error", err)
	}
	if len(summaries) == 0 {
		fmt.Println("No saved conversations found")
		return
	}

	for _, summary := range summaries {
		fmt.Printf("%s  %s\n", summary.ID, summary.Title)
		fmt.Printf("    created: %s | updated: %s | turns: %d\n",
			summary.CreatedAt.Local().Format("2006-01-02 15:04"),
			summary.UpdatedAt.Local().Format("2006-01-02 15:04"),
			summary.TurnCount)
	}
}

func runModels(_ *cobra.Command, _ []string) {
	cfg := loadConfig()
	client := llm.NewClient(cfg)

	models, err := client.ListModels(context.Background())
	if err != nil {
		logger.Fatal("Failed to list models", "error", err)
	}
	if len(models) == 0 {
		fmt.Println("No models found")
		return
	}

	for i := range models {
		state := "available"
		if models[i].IsLoaded() {
			state = "loaded"
		}
		fmt.Printf("%-9s %s\n", state, models[i].ID)
		fmt.Printf("    arch: %s | quant: %s | max context: %d\n",
			models[i].Architecture, models[i].Quantization, models[i].ContextLength)
	}
}

func runStatus(_ *cobra.Command, _ []string) {
	cfg := loadConfig()
	client := llm.NewClient(cfg)

	health, err := client.HealthCheck(context.Background())
	if err != nil {
		fmt.Printf("Model server is not healthy: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Model server is running and healthy")
	fmt.Printf("Total models: %d\n", health.TotalModels)
	fmt.Printf("Loaded models: %d\n", len(health.LoadedModels))
	for _, id := range health.LoadedModels {
		fmt.Printf("  • %s\n", id)
	}
}

func runExport(_ *cobra.Command, args []string) {
	cfg := loadConfig()
	manager := session.NewManager(cfg, store.New(cfg.SessionsDir))

	id, dest := args[0], args[1]
	if err := manager.Export(id, dest); err != nil {
		logger.Fatal("Export failed", "conversation_id", id, "error", err)
	}
	fmt.Printf("Conversation exported to %s\n", dest)
}
