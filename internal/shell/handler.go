// Package shell provides the interactive chat loop for Companion. It routes
// every input line through a single handler: slash commands are dispatched to
// conversation and server operations, anything else becomes a chat message.
package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/abiosoft/ishell/v2"
	"golang.design/x/clipboard"

	"companion/internal/config"
	"companion/internal/llm"
	"companion/internal/logger"
	"companion/internal/render"
	"companion/internal/session"
	"companion/internal/store"
	"companion/internal/version"
	"companion/pkg/chattypes"
)

// Shell wires the conversation manager, model client, and renderer into an
// interactive loop. All state is held explicitly; there are no globals.
type Shell struct {
	cfg      *config.Config
	manager  *session.Manager
	client   *llm.Client
	renderer *render.Renderer

	lastReply    string
	clipboardErr error
}

// New creates the interactive shell.
func New(cfg *config.Config, manager *session.Manager, client *llm.Client) (*Shell, error) {
	renderer, err := render.New()
	if err != nil {
		return nil, err
	}

	return &Shell{
		cfg:          cfg,
		manager:      manager,
		client:       client,
		renderer:     renderer,
		clipboardErr: clipboard.Init(),
	}, nil
}

// Run starts the interactive loop and blocks until the user quits.
func (s *Shell) Run() {
	sh := ishell.New()
	sh.SetPrompt("you> ")

	// Every line goes through processInput; no builtin commands
	sh.DeleteCmd("exit")
	sh.DeleteCmd("help")
	sh.DeleteCmd("clear")
	sh.NotFound(s.processInput)

	sh.Println(fmt.Sprintf("Companion v%s - local chat client", version.GetVersion()))
	sh.Println(render.Info(fmt.Sprintf("style: %s | model: %s | endpoint: %s | window: %d turns",
		s.cfg.Style, s.cfg.Model, s.cfg.BaseURL, s.cfg.MaxWindow)))
	sh.Println("Type a message to chat, /help for commands, /quit to exit.")

	// A fresh conversation is always active when the loop starts
	s.manager.StartNew("", "")

	sh.Run()
}

// processInput handles one line of user input.
func (s *Shell) processInput(c *ishell.Context) {
	if len(c.RawArgs) == 0 {
		return
	}

	input := strings.TrimSpace(strings.Join(c.RawArgs, " "))
	if input == "" {
		return
	}

	if strings.HasPrefix(input, "/") {
		if !s.handleCommand(c, input) {
			c.Stop()
		}
		return
	}

	s.chat(c, input)
}

// parseCommand splits a slash-command line into its name and argument rest.
func parseCommand(input string) (cmd, args string) {
	parts := strings.SplitN(strings.TrimPrefix(input, "/"), " ", 2)
	cmd = strings.ToLower(parts[0])
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return cmd, args
}

// handleCommand dispatches a slash command. It returns false when the shell
// should stop.
func (s *Shell) handleCommand(c *ishell.Context, input string) bool {
	cmd, args := parseCommand(input)

	switch cmd {
	case "quit", "exit", "q":
		s.offerSave(c)
		c.Println(render.Info("Goodbye!"))
		return false

	case "help", "h":
		s.showHelp(c)

	case "new":
		s.manager.StartNew(args, "")
		c.Println(render.Info("Started new conversation"))

	case "save":
		s.saveCurrent(c)

	case "list":
		s.listConversations(c)

	case "load":
		s.loadConversation(c, args)

	case "clear":
		if s.confirm(c, "Clear current conversation without saving?") {
			s.manager.Clear()
			c.Println(render.Info("Conversation cleared"))
		}

	case "status":
		s.showStatus(c)

	case "models":
		s.listModels(c)

	case "export":
		s.exportConversation(c, args)

	case "copy":
		s.copyLastReply(c)

	default:
		c.Println(render.Error(fmt.Sprintf("unknown command: /%s (type /help for available commands)", cmd)))
	}

	return true
}

// chat processes a plain chat message through one full turn.
func (s *Shell) chat(c *ishell.Context, text string) {
	c.Println(s.renderer.UserMessage(text))

	s.manager.AppendUserMessage(text)
	messages := s.manager.Window()

	c.Println(render.Info("thinking... (Ctrl+C to interrupt)"))

	// Ctrl+C during generation cancels the request, not the shell
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	response, err := s.client.ChatCompletion(ctx, messages, llm.CompletionOptions{})
	stop()

	if err != nil {
		// The in-flight turn is discarded so the conversation returns to
		// its prior state; no response is attached unless the call fully
		// succeeded.
		s.manager.DiscardIncompleteTurn()
		if errors.Is(err, context.Canceled) {
			c.Println(render.Warn("generation interrupted"))
			return
		}
		logger.Error("Chat completion failed", "error", err)
		c.Println(render.Error(err.Error()))
		return
	}

	if err := s.manager.CompleteWithResponse(response); err != nil {
		c.Println(render.Error(err.Error()))
		return
	}

	s.lastReply = response.Message.Content
	c.Println(s.renderer.AssistantMessage(response.Message.Content, s.statsLine(response)))

	s.manager.Autosave()
}

// statsLine formats the usage and performance stats shown in debug mode.
func (s *Shell) statsLine(response *chattypes.ChatResponse) string {
	if !s.cfg.Debug {
		return ""
	}
	return fmt.Sprintf("tokens: %d | speed: %.1f tok/s | time: %.2fs",
		response.Usage.TotalTokens,
		response.Stats.TokensPerSecond,
		response.Stats.GenerationTime)
}

func (s *Shell) showHelp(c *ishell.Context) {
	help := `Commands:
  /new [title]           start a new conversation
  /save                  save the current conversation
  /list                  list saved conversations
  /load <id>             load a saved conversation by id
  /clear                 discard the current conversation
  /export <id> <file>    export a conversation document to a file
  /copy                  copy the last assistant reply to the clipboard
  /status                check the model server connection
  /models                list available models
  /help                  show this help
  /quit                  exit

Anything else is sent to the model as a chat message.`
	c.Println(help)
}

func (s *Shell) saveCurrent(c *ishell.Context) {
	path, err := s.manager.Save()
	if err != nil {
		if errors.Is(err, session.ErrNoActiveConversation) {
			c.Println(render.Warn("no conversation to save"))
			return
		}
		c.Println(render.Error(err.Error()))
		return
	}
	c.Println(render.Info("Conversation saved to " + path))
}

func (s *Shell) listConversations(c *ishell.Context) {
	summaries, err := s.manager.ListSummaries()
	if err != nil {
		c.Println(render.Error(err.Error()))
		return
	}
	if len(summaries) == 0 {
		c.Println(render.Info("No saved conversations found."))
		return
	}

	c.Println(render.Info("Saved conversations:"))
	for _, summary := range summaries {
		c.Println(fmt.Sprintf("  %-10s  %-40s  %3d turns  %s",
			shortID(summary.ID),
			truncate(summary.Title, 40),
			summary.TurnCount,
			summary.UpdatedAt.Local().Format("2006-01-02 15:04")))
	}
	c.Println(render.Info("Load one with /load <id> (full id required)."))
}

func (s *Shell) loadConversation(c *ishell.Context, id string) {
	if id == "" {
		c.Println(render.Error("usage: /load <id>"))
		return
	}

	conv, err := s.manager.Load(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.Println(render.Error(fmt.Sprintf("conversation %s not found", id)))
			return
		}
		if errors.Is(err, store.ErrCorruptRecord) {
			c.Println(render.Error(fmt.Sprintf("conversation %s is corrupt: %v", id, err)))
			return
		}
		c.Println(render.Error(err.Error()))
		return
	}
	c.Println(render.Info(fmt.Sprintf("Loaded conversation: %s (%d turns)", conv.Title, conv.TurnCount())))
}

func (s *Shell) showStatus(c *ishell.Context) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	health, err := s.client.HealthCheck(ctx)
	if err != nil {
		c.Println(render.Error("model server is not healthy: " + err.Error()))
		return
	}

	c.Println(render.Info(fmt.Sprintf("Model server connected: %d models, %d loaded", health.TotalModels, len(health.LoadedModels))))
	for _, id := range health.LoadedModels {
		c.Println("  • " + id)
	}
}

func (s *Shell) listModels(c *ishell.Context) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	models, err := s.client.ListModels(ctx)
	if err != nil {
		c.Println(render.Error(err.Error()))
		return
	}
	if len(models) == 0 {
		c.Println(render.Info("No models found."))
		return
	}

	for i := range models {
		state := "available"
		if models[i].IsLoaded() {
			state = "loaded"
		}
		c.Println(fmt.Sprintf("  %-9s %s (%s, %s, ctx %d)",
			state, models[i].ID, models[i].Architecture, models[i].Quantization, models[i].ContextLength))
	}
}

func (s *Shell) exportConversation(c *ishell.Context, args string) {
	fields := strings.Fields(args)
	var id, dest string
	switch len(fields) {
	case 1:
		// Export the current conversation
		if s.manager.Current() == nil {
			c.Println(render.Warn("no conversation to export"))
			return
		}
		id, dest = s.manager.Current().ID, fields[0]
	case 2:
		id, dest = fields[0], fields[1]
	default:
		c.Println(render.Error("usage: /export [id] <file>"))
		return
	}

	if err := s.manager.Export(id, dest); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.Println(render.Error(fmt.Sprintf("conversation %s not found", id)))
			return
		}
		c.Println(render.Error(err.Error()))
		return
	}
	c.Println(render.Info("Conversation exported to " + dest))
}

func (s *Shell) copyLastReply(c *ishell.Context) {
	if s.lastReply == "" {
		c.Println(render.Warn("nothing to copy yet"))
		return
	}
	if s.clipboardErr != nil {
		c.Println(render.Error("clipboard unavailable: " + s.clipboardErr.Error()))
		return
	}

	clipboard.Write(clipboard.FmtText, []byte(s.lastReply))
	c.Println(render.Info("Last reply copied to clipboard"))
}

// offerSave asks to save a conversation that has turns before exiting.
func (s *Shell) offerSave(c *ishell.Context) {
	conv := s.manager.Current()
	if conv == nil || conv.TurnCount() == 0 {
		return
	}
	if s.confirm(c, "Save current conversation before exiting?") {
		s.saveCurrent(c)
	}
}

// confirm asks a yes/no question and returns the answer.
func (s *Shell) confirm(c *ishell.Context, question string) bool {
	c.Print(question + " (y/n): ")
	answer := strings.ToLower(strings.TrimSpace(c.ReadLine()))
	return answer == "y" || answer == "yes"
}

func shortID(id string) string {
	runes := []rune(id)
	if len(runes) <= 8 {
		return id
	}
	return string(runes[:8]) + "…"
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
