package ollama

import "time"

// chatRequest is Ollama's /api/chat request format.
type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []chatMessage  `json:"messages"`
	Stream    *bool          `json:"stream,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   *optionsRecord `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type optionsRecord struct {
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"top_p,omitempty"`
	NumPredict    *int     `json:"num_predict,omitempty"`
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty"`
	Stop          []string `json:"stop,omitempty"`
}

// chatResponse is Ollama's non-streaming /api/chat response.
type chatResponse struct {
	Model      string      `json:"model"`
	CreatedAt  time.Time   `json:"created_at"`
	Message    chatMessage `json:"message"`
	Done       bool        `json:"done"`
	DoneReason string      `json:"done_reason,omitempty"`
	EvalCount  int         `json:"eval_count,omitempty"`
}

// tagsResponse is the /api/tags listing used as a reachability probe.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}
