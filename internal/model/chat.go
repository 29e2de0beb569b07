package model

// HistoryEntry is a prior turn sent by the client. Either Parts or Content
// carries the text.
type HistoryEntry struct {
	Role    string `json:"role"`
	Parts   []Part `json:"parts,omitempty"`
	Content string `json:"content,omitempty"`
}

// Text flattens the entry, preferring parts.
func (h HistoryEntry) Text() string {
	if h.Parts != nil {
		return JoinParts(h.Parts)
	}
	return h.Content
}

type ChatRequest struct {
	ModelID      string         `json:"modelId"`
	History      []HistoryEntry `json:"history"`
	CurrentParts []Part         `json:"currentParts"`
	SessionID    string         `json:"sessionId,omitempty"`
	// APIKey is only used when the server has no provider key configured.
	APIKey string `json:"apiKey,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type ChatResponse struct {
	Reply           string     `json:"reply"`
	Usage           *ChatUsage `json:"usage"`
	Cost            float64    `json:"cost"`
	Balance         float64    `json:"balance"`
	Limited         bool       `json:"limited"`
	PromptTruncated bool       `json:"prompt_truncated"`
	MaxTokens       int64      `json:"max_tokens"`
}
