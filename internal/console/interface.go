package console

import (
	"bufio"
	"chat-bridge/internal/config"
	"chat-bridge/internal/entity"
	"chat-bridge/internal/usecase"
	"chat-bridge/internal/usecase/adapters"
	"chat-bridge/pkg/apperr"
	"chat-bridge/pkg/logg"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var errExit = errors.New("exit")

type Interface struct {
	config  *config.Config
	logger  *zap.Logger
	chat    adapters.ChatService
	in      io.Reader
	out     io.Writer
	ctx     context.Context
	cancel  context.CancelFunc
	sigChan chan os.Signal
	once    sync.Once
	chatID  string
}

type Params struct {
	fx.In

	Config  *config.Config
	Logger  *zap.Logger
	Usecase *usecase.Service
}

func NewInterface(params Params) *Interface {
	return newInterface(params.Config, params.Logger, params.Usecase.Chat, os.Stdin, os.Stdout)
}

func newInterface(cfg *config.Config, logger *zap.Logger, chat adapters.ChatService, in io.Reader, out io.Writer) *Interface {
	ctx, cancel := context.WithCancel(context.Background())

	return &Interface{
		config:  cfg,
		logger:  logger.With(zap.String(logg.Layer, "Console")),
		chat:    chat,
		in:      in,
		out:     out,
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 1),
	}
}

// Start runs the read loop until stdin closes, the user exits or Stop is called.
func (i *Interface) Start() error {
	i.printBanner()
	i.printHelp()

	signal.Notify(i.sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(i.sigChan)

	go func() {
		select {
		case <-i.sigChan:
			fmt.Fprintln(i.out, "\n\nInterrupt received, cancelling current turn...")
			i.Stop()
		case <-i.ctx.Done():
		}
	}()

	return i.loop()
}

func (i *Interface) loop() error {
	scanner := bufio.NewScanner(i.in)

	for {
		if i.ctx.Err() != nil {
			return nil
		}

		fmt.Fprint(i.out, "\n> ")

		if !scanner.Scan() {
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if err := i.handleCommand(input); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}

			i.logger.Error("Command error", zap.Error(err))
			fmt.Fprintf(i.out, "Error: %v\n", err)
		}
	}
}

func (i *Interface) Stop() error {
	i.once.Do(func() {
		i.logger.Info("Stopping console interface...")
		i.cancel()
	})

	return nil
}

func (i *Interface) handleCommand(input string) error {
	switch {
	case input == "help" || input == "h":
		i.printHelp()

		return nil
	case input == "exit" || input == "quit" || input == "q":
		fmt.Fprintln(i.out, "Shutting down...")

		return errExit
	case input == "/new":
		i.chatID = ""
		fmt.Fprintln(i.out, "Started a new conversation.")

		return nil
	case strings.HasPrefix(input, "/image"):
		path, text, ok := parseImage(input)
		if !ok {
			return fmt.Errorf("usage: /image <path> <message>")
		}

		return i.turn(entity.TurnRequest{ChatID: i.chatID, Text: text, ImagePath: path})
	default:
		return i.turn(entity.TurnRequest{ChatID: i.chatID, Text: input})
	}
}

func (i *Interface) turn(req entity.TurnRequest) error {
	turn, err := i.chat.Turn(i.ctx, req)
	if err != nil {
		if code := apperr.CodeOf(err); code != "" {
			return fmt.Errorf("%s: %w", code, err)
		}

		return err
	}

	i.chatID = turn.ChatID

	fmt.Fprintf(i.out, "\n%s\n", turn.Response)

	if turn.Partial {
		fmt.Fprintln(i.out, "\n(reply cut off: the response did not finish in time)")
	}

	i.logger.Debug("Turn completed", zap.String(logg.ChatID, turn.ChatID), zap.Bool("partial", turn.Partial))

	return nil
}

func parseImage(input string) (path, text string, ok bool) {
	fields := strings.Fields(strings.TrimPrefix(input, "/image"))
	if len(fields) < 2 {
		return "", "", false
	}

	return fields[0], strings.Join(fields[1:], " "), true
}

func (i *Interface) printBanner() {
	banner := `
+-----------------------------------------------------------+
|                                                           |
|                    Chat Bridge Console                    |
|                                                           |
|   Drives the web chat UI through a headless browser       |
|                                                           |
+-----------------------------------------------------------+
`
	fmt.Fprintln(i.out, banner)
}

func (i *Interface) printHelp() {
	help := `
Available commands:
  help, h                  - Show this help message
  /new                     - Start a new conversation
  /image <path> <message>  - Send a message with an attached image
  exit, quit, q            - Exit the application

Anything else is sent to the chat as a message in the current conversation.
`
	fmt.Fprintln(i.out, help)
}
