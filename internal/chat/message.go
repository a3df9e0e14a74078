package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role is a conversation message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	// RoleProcess marks a collapsible record summarizing a multi-step flow.
	// Process messages live in the UI timeline only and never serialize
	// into an outbound chat request.
	RoleProcess Role = "process"
)

// StepStatus is a process step's lifecycle state.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepRunning  StepStatus = "running"
	StepComplete StepStatus = "complete"
	StepError    StepStatus = "error"
)

// ProcessStep is one descriptor of a process record.
type ProcessStep struct {
	Text   string     `json:"text"`
	Detail string     `json:"detail,omitempty"`
	Status StepStatus `json:"status"`
}

// ProcessRecord summarizes a finished retrieval flow.
type ProcessRecord struct {
	Steps      []ProcessStep `json:"steps"`
	FolderName string        `json:"folderName,omitempty"`
	Hits       int           `json:"hits"`
}

// Message is one conversation entry. Content carries the text for the text
// roles; Process carries the structured record for RoleProcess. The
// underscore-tagged fields are private UI annotations.
type Message struct {
	ID         string         `json:"id"`
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	Process    *ProcessRecord `json:"process,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	References []string       `json:"references,omitempty"`
	Sources    []string       `json:"sources,omitempty"`

	IsError            bool   `json:"_isError,omitempty"`
	ErrorType          Kind   `json:"_errorType,omitempty"`
	Mode               string `json:"_mode,omitempty"`
	UsedDataCollection string `json:"_usedDataCollection,omitempty"`
	OriginalIntent     Intent `json:"_originalIntent,omitempty"`
	FolderID           string `json:"_folderId,omitempty"`
	// OfferInsert marks an assistant reply produced during an active
	// email-reply intent; the panel offers to insert it into the mail tab.
	OfferInsert bool `json:"offerInsert,omitempty"`
}

// NewMessage builds a message with a fresh id and timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// wireMessage is the request-payload view of a message.
type wireMessage struct {
	Role       Role     `json:"role"`
	Content    string   `json:"content"`
	References []string `json:"references"`
	Sources    []string `json:"sources"`
}

// payloadMessages projects a conversation onto the request payload shape,
// dropping process records.
func payloadMessages(msgs []Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleProcess {
			continue
		}
		refs := m.References
		if refs == nil {
			refs = []string{}
		}
		sources := m.Sources
		if sources == nil {
			sources = []string{}
		}
		out = append(out, wireMessage{Role: m.Role, Content: m.Content, References: refs, Sources: sources})
	}
	return out
}
