package model

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

type ChatSession struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Title string `json:"title"`
	Ctime int64  `json:"ctime"`
	Mtime int64  `json:"mtime"`
}

// ChatMessage is one immutable conversation turn half. Assistant messages
// carry the citations of the context included in their prompt, and an
// ungrounded flag when no context was available.
type ChatMessage struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Owner      string     `json:"owner"`
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Citations  []Citation `json:"citations,omitempty"`
	Ungrounded bool       `json:"ungrounded,omitempty"`
	Ctime      int64      `json:"ctime"`
}
