package chatbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"TherapyBuddy/internal/backend"
	"TherapyBuddy/internal/config"
	"TherapyBuddy/internal/conversation"
	"TherapyBuddy/internal/persona"
)

// HandleCommand runs a slash command, writing any output to w. It reports
// whether the user asked to quit.
func (cb *ChatBot) HandleCommand(ctx context.Context, cmd string, w io.Writer) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new", "/new-session":
		if err := cb.startSession(ctx, cb.BackendName(), cb.Mode()); err != nil {
			return false, err
		}
		fmt.Fprintln(w, "Started new session:", cb.Controller().Transcript().ID())
		return false, nil

	case "/switch":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /switch <backend> (%s)", strings.Join(config.Backends(), "|"))
		}
		backendName := parts[1]
		if !config.IsBackend(backendName) {
			return false, fmt.Errorf("unknown backend: %s", backendName)
		}
		if err := cb.startSession(ctx, backendName, cb.Mode()); err != nil {
			return false, err
		}
		fmt.Fprintf(w, "Switched to %s backend (new session)\n", backendName)
		return false, nil

	case "/mode":
		if len(parts) < 2 {
			fmt.Fprintf(w, "Current mode: %s (available: %s)\n", cb.Mode(), modeList())
			return false, nil
		}
		mode, err := persona.ParseMode(parts[1])
		if err != nil {
			return false, fmt.Errorf("%w (available: %s)", err, modeList())
		}
		if err := cb.startSession(ctx, cb.BackendName(), mode); err != nil {
			return false, err
		}
		fmt.Fprintf(w, "Mode set to %s (new session)\n", mode)
		return false, nil

	case "/cancel":
		if err := cb.Controller().CancelActive(); err != nil {
			if errors.Is(err, conversation.ErrNoActiveTurn) {
				fmt.Fprintln(w, "Nothing to cancel.")
				return false, nil
			}
			return false, err
		}
		return false, nil

	case "/history":
		transcript := cb.Controller().Transcript()
		fmt.Fprintf(w, "\nSession %s (started %s)\n", transcript.ID(), transcript.StartTime().Format("15:04:05"))
		for _, msg := range transcript.Messages() {
			fmt.Fprintf(w, "[%s] %s\n", msg.Timestamp.Format("15:04:05"), cb.render(msg))
		}
		fmt.Fprintln(w)
		return false, nil

	case "/list-ollama-models":
		ollama := backend.NewOllama(cb.config.Ollama.URL, cb.config.Ollama.Model, backend.HTTPOptions{
			Client: cb.httpClient,
			Meter:  cb.meter,
		})
		models, err := ollama.ListModels(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list Ollama models: %w", err)
		}
		fmt.Fprintln(w, "\nAvailable Ollama models:")
		for i, model := range models {
			sizeGB := float64(model.Size) / (1024 * 1024 * 1024)
			current := ""
			if model.Name == cb.config.Ollama.Model {
				current = " (current)"
			}
			fmt.Fprintf(w, "%d. %s - %.2f GB%s\n", i+1, model.Name, sizeGB, current)
		}
		fmt.Fprintln(w)
		return false, nil

	case "/set-ollama-model":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /set-ollama-model <model:version>")
		}
		cb.config.Ollama.Model = parts[1]
		fmt.Fprintf(w, "Ollama model set to: %s (applies to the next ollama session)\n", parts[1])
		return false, nil

	case "/help":
		fmt.Fprintln(w, "Available commands:")
		fmt.Fprintln(w, "  /quit, /exit              - Exit")
		fmt.Fprintln(w, "  /new                      - Start a new session")
		fmt.Fprintf(w, "  /switch <backend>         - Switch reply backend (%s)\n", strings.Join(config.Backends(), "|"))
		fmt.Fprintf(w, "  /mode <mode>              - Change mode (%s)\n", modeList())
		fmt.Fprintln(w, "  /cancel                   - Cancel the reply in progress")
		fmt.Fprintln(w, "  /history                  - Show this session's transcript")
		fmt.Fprintln(w, "  /list-ollama-models       - List available Ollama models")
		fmt.Fprintln(w, "  /set-ollama-model <model> - Set Ollama model (e.g., llama3:latest)")
		fmt.Fprintln(w, "  /help                     - Show this help message")
		return false, nil

	default:
		fmt.Fprintf(w, "Unknown command %s. Type /help for commands.\n", parts[0])
		return false, nil
	}
}

func modeList() string {
	modes := persona.Modes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, "|")
}
