package chatbot

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"TherapyBuddy/internal/cache"
	"TherapyBuddy/internal/config"
	"TherapyBuddy/internal/conversation"
	"TherapyBuddy/internal/persona"
	"TherapyBuddy/internal/session"
)

// Options carries the dependencies of a ChatBot. Zero values fall back to
// slog.Default, no-op telemetry, stdin and stdout.
type Options struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter
	In     io.Reader
	Out    io.Writer
}

// ChatBot represents the main application: one live conversation session
// at a time, plus the line-oriented front end that drives it
type ChatBot struct {
	config     config.Config
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	httpClient *http.Client

	in    io.Reader
	out   io.Writer
	outMu sync.Mutex // serialises terminal writes from the loop and the observer

	mu          sync.Mutex
	backendName string
	mode        persona.Mode
	controller  *conversation.Controller
	release     func()
	caches      map[string]*cache.Store // by backend/mode, outlives sessions
}

// New creates a ChatBot and starts its first session
func New(cfg config.Config, opts Options) (*ChatBot, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = tracenoop.NewTracerProvider().Tracer("chatbot")
	}
	if opts.Meter == nil {
		opts.Meter = metricnoop.NewMeterProvider().Meter("chatbot")
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	mode, err := persona.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	cb := &ChatBot{
		config:     cfg,
		logger:     opts.Logger.With("component", "chatbot"),
		tracer:     opts.Tracer,
		meter:      opts.Meter,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		in:         opts.In,
		out:        opts.Out,
	}

	if cfg.Debug {
		cb.logger.Info("Debug mode enabled")
	}

	if err := cb.startSession(context.Background(), cfg.Backend, mode); err != nil {
		return nil, err
	}
	return cb, nil
}

// Controller returns the controller of the live session
func (cb *ChatBot) Controller() *conversation.Controller {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.controller
}

// BackendName returns the backend of the live session
func (cb *ChatBot) BackendName() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.backendName
}

// Mode returns the persona mode of the live session
func (cb *ChatBot) Mode() persona.Mode {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.mode
}

// Greeting is the message every session opens with
func (cb *ChatBot) Greeting() string {
	return persona.Greeting(cb.config.UserName)
}

// startSession builds a backend and a fresh greeted transcript, then tears
// the previous session down. On error the previous session stays live.
func (cb *ChatBot) startSession(ctx context.Context, backendName string, mode persona.Mode) error {
	b, release, err := cb.buildBackend(ctx, backendName, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s backend: %w", backendName, err)
	}

	transcript := session.NewTranscript(cb.logger)
	greeting, err := session.NewMessage(session.RoleAssistant, cb.Greeting())
	if err != nil {
		release()
		return err
	}
	if err := transcript.Seed(greeting); err != nil {
		release()
		return err
	}

	controller := conversation.New(transcript, b,
		conversation.WithLogger(cb.logger),
		conversation.WithTracer(cb.tracer),
		conversation.WithMeter(cb.meter),
		conversation.WithReplyTimeout(cb.config.ReplyTimeout.Duration))

	cb.mu.Lock()
	prevController, prevRelease := cb.controller, cb.release
	cb.controller = controller
	cb.release = release
	cb.backendName = backendName
	cb.mode = mode
	cb.mu.Unlock()

	if prevController != nil {
		prevController.Close()
	}
	if prevRelease != nil {
		prevRelease()
	}

	cb.logger.Info("created new session",
		"session_id", transcript.ID(),
		"backend", backendName,
		"mode", mode)
	return nil
}

// Close ends the live session, releases its backend and stops the reply caches
func (cb *ChatBot) Close() {
	cb.mu.Lock()
	controller, release, caches := cb.controller, cb.release, cb.caches
	cb.controller, cb.release, cb.caches = nil, nil, nil
	cb.mu.Unlock()

	if controller != nil {
		controller.Close()
	}
	if release != nil {
		release()
	}
	for _, store := range caches {
		store.Close()
	}
}

// printf writes to the terminal
func (cb *ChatBot) printf(format string, args ...interface{}) {
	cb.outMu.Lock()
	defer cb.outMu.Unlock()
	fmt.Fprintf(cb.out, format, args...)
}

// Run starts the chat loop and returns when the user quits, input ends or
// ctx is cancelled. The session is closed on return.
func (cb *ChatBot) Run(ctx context.Context) error {
	defer cb.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cb.printf("=== Therapy Buddy ===\n")
	cb.printf("Backend: %s  Mode: %s\n", cb.BackendName(), cb.Mode())
	cb.printf("Type /help for commands, /quit to exit\n\n")

	lines := readLines(ctx, cb.in)

	controller := cb.Controller()
	stopObserver := cb.observe(ctx, controller)
	defer func() { stopObserver() }()

	var lastTurn *conversation.Turn
	cb.prompt()

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			cb.printf("\nGoodbye!\n")
			return nil
		case line, ok = <-lines:
		}

		if !ok {
			// input ended: let the last reply land before leaving
			if lastTurn != nil {
				select {
				case <-lastTurn.Done():
				case <-ctx.Done():
				}
			}
			cb.printf("\nGoodbye!\n")
			return nil
		}

		input := strings.TrimSpace(line)

		if strings.HasPrefix(input, "/") {
			var output bytes.Buffer
			shouldQuit, err := cb.HandleCommand(ctx, input, &output)
			cb.printf("%s", output.String())
			if err != nil {
				cb.printf("Error: %v\n", err)
				cb.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				cb.printf("Goodbye!\n")
				return nil
			}
			if current := cb.Controller(); current != controller {
				stopObserver()
				controller = current
				stopObserver = cb.observe(ctx, controller)
			}
			cb.prompt()
			continue
		}

		turn := controller.Submit(input)
		switch {
		case turn != nil:
			lastTurn = turn
		case input == "":
			cb.prompt()
		default:
			cb.printf("Still thinking about your last message. Please wait, or /cancel.\n")
			cb.prompt()
		}
	}
}

func (cb *ChatBot) prompt() {
	cb.printf("%s", color.New(color.FgGreen, color.Bold).Sprint("You: "))
}

// readLines delivers input lines until EOF or ctx is done
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// observe renders transcript changes of controller until the returned stop
// func is called or the transcript closes. It first prints the messages
// already present, such as the greeting.
func (cb *ChatBot) observe(ctx context.Context, controller *conversation.Controller) func() {
	ctx, cancel := context.WithCancel(ctx)
	transcript := controller.Transcript()
	events, _ := transcript.Subscribe(ctx)

	for _, msg := range transcript.Messages() {
		cb.printf("%s\n", cb.render(msg))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			switch ev.Kind {
			case session.EventPending:
				if ev.Pending {
					cb.printf("%s\n", typingStyle.Sprint("Buddy is typing…"))
				}
			case session.EventAppended:
				// the user's own line is already on screen
				if ev.Message.Role == session.RoleUser {
					continue
				}
				cb.printf("%s\n\n", cb.render(ev.Message))
				cb.prompt()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

var (
	buddyStyle  = color.New(color.FgCyan)
	userStyle   = color.New(color.FgGreen)
	systemStyle = color.New(color.FgYellow)
	typingStyle = color.New(color.Faint, color.Italic)
)

// render formats a message for the terminal
func (cb *ChatBot) render(msg session.Message) string {
	switch msg.Role {
	case session.RoleUser:
		return userStyle.Sprint("You: ") + msg.Text
	case session.RoleSystem:
		return systemStyle.Sprint("! " + msg.Text)
	}
	return buddyStyle.Sprint("Buddy: ") + msg.Text
}
