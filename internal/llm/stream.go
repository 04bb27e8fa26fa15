package llm

// ApiStream is a stream of response chunks from a completion provider. The
// producer closes the channel at end of stream; an ApiStreamErrorChunk, when
// present, is the final chunk before close.
type ApiStream <-chan ApiStreamChunk

// ApiStreamChunk is one unit of a streaming response.
type ApiStreamChunk interface {
	chunkType() string
}

// ApiStreamTextChunk carries one incremental fragment of reply text.
type ApiStreamTextChunk struct {
	Text string
}

func (ApiStreamTextChunk) chunkType() string { return "text" }

// ApiStreamUsageChunk carries token usage reported by the provider, usually
// arriving once near the end of the stream.
type ApiStreamUsageChunk struct {
	InputTokens  int
	OutputTokens int
}

func (ApiStreamUsageChunk) chunkType() string { return "usage" }

// ApiStreamErrorChunk reports a failure that ended the stream early. Any
// text chunks delivered before it remain valid: they are what the user saw.
type ApiStreamErrorChunk struct {
	Err error
}

func (ApiStreamErrorChunk) chunkType() string { return "error" }
