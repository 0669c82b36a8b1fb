package chattypes

// UsageStats holds token usage counts reported by the model server.
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// PerformanceStats holds generation timing and throughput metrics reported by
// the model server. The values are pass-through; nothing in the conversation
// layer interprets them.
type PerformanceStats struct {
	TokensPerSecond  float64 `json:"tokens_per_second"`
	TimeToFirstToken float64 `json:"time_to_first_token"`
	GenerationTime   float64 `json:"generation_time"`
	StopReason       string  `json:"stop_reason,omitempty"`
}

// RuntimeInfo identifies the inference runtime that produced a response.
type RuntimeInfo struct {
	Name             string   `json:"name,omitempty"`
	Version          string   `json:"version,omitempty"`
	SupportedFormats []string `json:"supported_formats,omitempty"`
}

// ChatResponse is a completed model response stored alongside a turn.
type ChatResponse struct {
	Message      Message          `json:"message"`
	Usage        UsageStats       `json:"usage"`
	Stats        PerformanceStats `json:"stats"`
	Runtime      RuntimeInfo      `json:"runtime,omitempty"`
	Model        string           `json:"model,omitempty"`
	ID           string           `json:"id,omitempty"`
	Created      int64            `json:"created,omitempty"`
	FinishReason string           `json:"finish_reason,omitempty"`
}

// ModelInfo describes a model known to the model server.
type ModelInfo struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Publisher     string `json:"publisher"`
	Architecture  string `json:"arch"`
	Quantization  string `json:"quant"`
	State         string `json:"state"`
	ContextLength int    `json:"max_context_length"`
	Format        string `json:"format,omitempty"`
}

// IsLoaded reports whether the model is currently loaded and ready to serve.
func (m *ModelInfo) IsLoaded() bool {
	return m.State == "loaded"
}
