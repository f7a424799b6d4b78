package service

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/notify-relay/internal/domain"
)

const (
	defaultPublicHost = "127.0.0.1"
	defaultPublicPort = "8887"
	unknownValue      = "unknown"
	unknownTaskTitle  = "unknown task"
)

// BaseURLSettings are the environment inputs for the deep link base URL.
type BaseURLSettings struct {
	PublicBaseURL string
	Host          string
	BackendPort   string
	Port          string
}

// BaseURL prefers an explicit public URL and otherwise builds one from the
// listening host and port.
func (s BaseURLSettings) BaseURL() string {
	if public := strings.TrimSpace(s.PublicBaseURL); public != "" {
		return strings.TrimRight(public, "/")
	}

	host := firstNonEmpty(s.Host, defaultPublicHost)
	port := firstNonEmpty(s.BackendPort, s.Port, defaultPublicPort)
	return fmt.Sprintf("http://%s:%s", host, port)
}

// CompletionMessage is the data rendered into the delivered text.
type CompletionMessage struct {
	Title     string
	Status    string
	Branch    string
	Executor  string
	ProjectID string
	TaskID    string
}

// MessageFormatter renders completion messages with deep links.
type MessageFormatter struct {
	baseURL string
}

func NewMessageFormatter(baseURL string) *MessageFormatter {
	return &MessageFormatter{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

// StatusSummary maps a raw execution status to its glyph line followed by the
// branch and executor lines.
func StatusSummary(status, branch, executor string) string {
	var head string
	switch domain.ExecutionStatus(status) {
	case domain.ExecutionCompleted:
		head = "✅ Execution completed"
	case domain.ExecutionFailed:
		head = "❌ Execution failed"
	case domain.ExecutionKilled:
		head = "🛑 Execution cancelled"
	default:
		head = status
	}

	return fmt.Sprintf("%s\nBranch: %s\nExecutor: %s",
		head,
		firstNonEmpty(branch, unknownValue),
		firstNonEmpty(executor, unknownValue),
	)
}

// TaskURL returns the deep link for a task, or "" when either id is unknown.
func (f *MessageFormatter) TaskURL(projectID, taskID string) string {
	projectID = strings.TrimSpace(projectID)
	taskID = strings.TrimSpace(taskID)
	if projectID == "" || taskID == "" {
		return ""
	}
	return fmt.Sprintf("%s/projects/%s/tasks/%s", f.baseURL, projectID, taskID)
}

func (f *MessageFormatter) Format(msg CompletionMessage) string {
	text := fmt.Sprintf("🎯 Task Complete: %s\n\nStatus: %s\n",
		firstNonEmpty(msg.Title, unknownTaskTitle),
		StatusSummary(msg.Status, msg.Branch, msg.Executor),
	)
	if url := f.TaskURL(msg.ProjectID, msg.TaskID); url != "" {
		text += "URL: " + url
	}
	return text
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
