package orchestrator

// StreamFrame is one element emitted on the streaming path: any number of
// chunk frames in upstream order, then exactly one complete frame.
type StreamFrame struct {
	Type     string          `json:"type"`
	Content  string          `json:"content,omitempty"`
	Metadata *StreamMetadata `json:"metadata,omitempty"`
}

// StreamMetadata is the aggregate carried by the final complete frame.
type StreamMetadata struct {
	Model              string  `json:"model"`
	TotalTokens        int     `json:"totalTokens"`
	ResponseTimeMs     int64   `json:"responseTimeMs"`
	AvgTokensPerSecond float64 `json:"avgTokensPerSecond"`
	EstimatedCostUSD   float64 `json:"estimatedCostUsd"`
	Provider           string  `json:"provider"`
}

// ChunkFrame builds a content frame.
func ChunkFrame(content string) StreamFrame {
	return StreamFrame{Type: "chunk", Content: content}
}

// CompleteFrame builds the terminal frame.
func CompleteFrame(meta *StreamMetadata) StreamFrame {
	return StreamFrame{Type: "complete", Metadata: meta}
}
