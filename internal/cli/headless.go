package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/njahi98/textile-chat-bridge/internal/domain"
)

// HeadlessCLI handles JSON-based headless operation
type HeadlessCLI struct {
	handler *CommandHandler
	reader  *bufio.Reader
	writer  io.Writer
	mu      sync.Mutex
}

// NewHeadlessCLI creates a new headless CLI
func NewHeadlessCLI(handler *CommandHandler) *HeadlessCLI {
	return &HeadlessCLI{
		handler: handler,
		reader:  bufio.NewReader(os.Stdin),
		writer:  os.Stdout,
	}
}

// Run starts the headless JSON processing loop
func (cli *HeadlessCLI) Run(ctx context.Context) error {
	// Send ready message
	cli.sendResponse(Response{
		Success: true,
		Data:    map[string]string{"status": "ready", "mode": "headless"},
	})

	// Subscribe to events in background
	eventChan := cli.handler.SubscribeEvents([]domain.EventType{
		domain.EventTypeMessageReceived,
		domain.EventTypeReadReceiptsApplied,
		domain.EventTypeNotificationReceived,
		domain.EventTypeTypingChanged,
		domain.EventTypeConnectionStatus,
	})

	go cli.streamEvents(eventChan)

	// Process incoming JSON requests
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			line, err := cli.reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					return nil
				}
				cli.sendError("", fmt.Sprintf("read error: %v", err))
				continue
			}

			cli.processRequest(ctx, line)
		}
	}
}

func (cli *HeadlessCLI) processRequest(ctx context.Context, line string) {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		cli.sendError("", fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if req.Command == "" {
		cli.sendError(req.ID, "missing command field")
		return
	}

	args := cli.paramsToArgs(req.Command, req.Params)

	cmd := &Command{
		Name: req.Command,
		Args: args,
	}

	switch req.Command {
	case "subscribe":
		// Already subscribed, just acknowledge
		cli.sendResponse(Response{
			ID:      req.ID,
			Success: true,
			Data:    map[string]string{"message": "subscribed to events"},
		})
		return
	case "quit", "exit":
		cli.sendResponse(Response{
			ID:      req.ID,
			Success: true,
			Data:    map[string]string{"message": "goodbye"},
		})
		os.Exit(0)
		return
	}

	result, err := cli.handler.Execute(ctx, cmd)
	if err != nil {
		cli.sendError(req.ID, err.Error())
		return
	}

	cli.sendResponse(Response{
		ID:      req.ID,
		Success: true,
		Data:    result,
	})
}

func (cli *HeadlessCLI) paramsToArgs(command string, params map[string]interface{}) []string {
	if params == nil {
		return nil
	}

	var args []string

	appendInt := func(key string) {
		if v, ok := params[key].(float64); ok {
			args = append(args, fmt.Sprintf("%d", int64(v)))
		}
	}
	appendIntList := func(key string) {
		if list, ok := params[key].([]interface{}); ok {
			for _, v := range list {
				if n, ok := v.(float64); ok {
					args = append(args, fmt.Sprintf("%d", int64(n)))
				}
			}
		}
	}

	switch command {
	case "open", "messages", "msg":
		appendInt("conversation_id")

	case "send":
		appendInt("conversation_id")
		if text, ok := params["text"].(string); ok {
			args = append(args, text)
		}

	case "read":
		appendInt("conversation_id")
		appendIntList("message_ids")

	case "create":
		name, _ := params["name"].(string)
		if name == "" {
			name = "-"
		}
		args = append(args, name)
		kind := "direct"
		if isGroup, ok := params["is_group"].(bool); ok && isGroup {
			kind = "group"
		}
		args = append(args, kind)
		appendIntList("participant_ids")

	case "typing":
		appendInt("conversation_id")
		if action, ok := params["action"].(string); ok {
			args = append(args, action)
		}

	case "users":
		if query, ok := params["query"].(string); ok {
			args = append(args, query)
		}

	case "notif-read", "nr":
		if all, ok := params["all"].(bool); ok && all {
			args = append(args, "all")
		} else {
			appendIntList("notification_ids")
		}

	case "history":
		appendInt("conversation_id")
		appendInt("limit")

	case "find":
		if query, ok := params["query"].(string); ok {
			args = append(args, query)
		}
		appendInt("limit")
	}

	return args
}

func (cli *HeadlessCLI) streamEvents(events <-chan domain.Event) {
	for event := range events {
		cli.sendEvent(Event{
			Type:      string(event.Type()),
			Timestamp: event.Timestamp(),
			Data:      eventData(event),
		})
	}
}

func eventData(event domain.Event) interface{} {
	switch e := event.(type) {
	case domain.MessageReceivedEvent:
		return e.Message
	case domain.ReadReceiptsAppliedEvent:
		return map[string]interface{}{
			"conversation_id": e.ConversationID,
			"reader_id":       e.ReaderID,
			"message_ids":     e.MessageIDs,
		}
	case domain.NotificationReceivedEvent:
		return e.Notification
	case domain.TypingChangedEvent:
		return map[string]int64{"conversation_id": e.ConversationID}
	case domain.ConnectionStatusEvent:
		return map[string]interface{}{"connected": e.Connected, "reason": e.Reason}
	default:
		return nil
	}
}

func (cli *HeadlessCLI) sendResponse(resp Response) {
	cli.mu.Lock()
	defer cli.mu.Unlock()

	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	fmt.Fprintln(cli.writer, string(raw))
}

func (cli *HeadlessCLI) sendError(id, message string) {
	cli.sendResponse(Response{
		ID:      id,
		Success: false,
		Error:   message,
	})
}

func (cli *HeadlessCLI) sendEvent(event Event) {
	cli.mu.Lock()
	defer cli.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload := struct {
		Event
		Kind string `json:"kind"`
	}{Event: event, Kind: "event"}

	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintln(cli.writer, string(raw))
}
