package ai

import (
	"github.com/pkoukk/tiktoken-go"
)

// perMessageOverhead is the token cost of the chat framing around each
// message (role markers and separators).
const perMessageOverhead = 4

// perReplyOverhead accounts for the priming of the assistant reply.
const perReplyOverhead = 2

// NumTokensForMessages estimates the number of prompt tokens a list of chat
// messages will consume for the given model. Used to keep the relevant-history
// window inside the model's context budget.
func NumTokensForMessages(messages []ChatMessage, model string) (int, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, err
		}
	}

	total := perReplyOverhead
	for _, msg := range messages {
		total += perMessageOverhead
		total += len(enc.Encode(msg.Role, nil, nil))
		total += len(enc.Encode(msg.Message, nil, nil))
	}
	return total, nil
}
