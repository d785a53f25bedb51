package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/njahi98/textile-chat-bridge/internal/domain"
)

// InteractiveCLI handles interactive command-line interface
type InteractiveCLI struct {
	handler *CommandHandler
	reader  *bufio.Reader
	writer  io.Writer
}

// NewInteractiveCLI creates a new interactive CLI
func NewInteractiveCLI(handler *CommandHandler) *InteractiveCLI {
	return &InteractiveCLI{
		handler: handler,
		reader:  bufio.NewReader(os.Stdin),
		writer:  os.Stdout,
	}
}

// Run starts the interactive CLI loop
func (cli *InteractiveCLI) Run(ctx context.Context) error {
	cli.printWelcome()

	// Subscribe to events in background
	eventChan := cli.handler.SubscribeEvents([]domain.EventType{
		domain.EventTypeMessageReceived,
		domain.EventTypeNotificationReceived,
		domain.EventTypeTypingChanged,
		domain.EventTypeConnectionStatus,
	})

	go cli.handleEvents(eventChan)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			cli.print("\n> ")
			line, err := cli.reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			if err := cli.processCommand(ctx, line); err != nil {
				if err.Error() == "quit" {
					cli.println("Goodbye!")
					return nil
				}
				cli.printf("Error: %s\n", err)
			}
		}
	}
}

func (cli *InteractiveCLI) printWelcome() {
	cli.println("===========================================")
	cli.println("  Factory Chat Bridge CLI")
	cli.println("===========================================")
	cli.println("Type /help for available commands")
	cli.println("")

	status, _ := cli.handler.cmdStatus()
	if s, ok := status.(interface{ String() string }); ok {
		cli.printf("Status: %s\n", s.String())
	} else if raw, err := json.Marshal(status); err == nil {
		cli.printf("Status: %s\n", raw)
	}
}

func (cli *InteractiveCLI) processCommand(ctx context.Context, input string) error {
	cmd, err := ParseCommand(input)
	if err != nil {
		return err
	}

	result, err := cli.handler.Execute(ctx, cmd)
	if err != nil {
		return err
	}

	if m, ok := result.(map[string]bool); ok && m["quit"] {
		return fmt.Errorf("quit")
	}
	if m, ok := result.(map[string]string); ok {
		if help, found := m["help"]; found {
			cli.println(help)
			return nil
		}
		if msg, found := m["message"]; found {
			cli.println(msg)
			return nil
		}
	}

	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	cli.println(string(raw))
	return nil
}

func (cli *InteractiveCLI) handleEvents(events <-chan domain.Event) {
	for event := range events {
		switch e := event.(type) {
		case domain.MessageReceivedEvent:
			cli.printf("\n[message] conversation %d from user %d: %s\n> ",
				e.Message.ConversationID, e.Message.SenderID, e.Message.Preview())
		case domain.NotificationReceivedEvent:
			cli.printf("\n[notification] %s: %s\n> ", e.Notification.Title, e.Notification.Content)
		case domain.TypingChangedEvent:
			cli.printf("\n[typing] conversation %d activity changed\n> ", e.ConversationID)
		case domain.ConnectionStatusEvent:
			if e.Connected {
				cli.printf("\n[connection] online\n> ")
			} else {
				cli.printf("\n[connection] offline (%s)\n> ", e.Reason)
			}
		}
	}
}

func (cli *InteractiveCLI) print(s string)                    { fmt.Fprint(cli.writer, s) }
func (cli *InteractiveCLI) println(s string)                  { fmt.Fprintln(cli.writer, s) }
func (cli *InteractiveCLI) printf(f string, a ...interface{}) { fmt.Fprintf(cli.writer, f, a...) }
