package prompt

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Llama 3 chat-format markers understood by the raw completion endpoint.
const (
	BeginOfText = "<|begin_of_text|>"
	StartHeader = "<|start_header_id|>"
	EndHeader   = "<|end_header_id|>"
	EndOfTurn   = "<|eot_id|>"
	EndOfText   = "<|end_of_text|>"
)

// StopSequences are passed to the completion service so generation ends at a turn boundary.
var StopSequences = []string{EndOfTurn, EndOfText}

// RenderLlama3 flattens messages into one raw prompt and leaves an open
// assistant header as the cue for the next turn.
func RenderLlama3(messages []*schema.Message) string {
	var b strings.Builder
	b.WriteString(BeginOfText)
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		writeHeader(&b, msg.Role)
		b.WriteString(msg.Content)
		b.WriteString(EndOfTurn)
	}
	writeHeader(&b, schema.Assistant)
	return b.String()
}

func writeHeader(b *strings.Builder, role schema.RoleType) {
	b.WriteString(StartHeader)
	b.WriteString(string(role))
	b.WriteString(EndHeader)
	b.WriteString("\n\n")
}
