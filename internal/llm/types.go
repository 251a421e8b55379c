package llm

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message sent as conversation context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options holds the per-request completion parameters. Zero values are
// replaced with the defaults the upstream expects.
type Options struct {
	Model            string
	Temperature      float64
	MaxTokens        int
	FrequencyPenalty float64
	PresencePenalty  float64
	TopP             float64
}

// Default request parameters.
const (
	DefaultModel     = "qwen2-72b-instruct"
	DefaultMaxTokens = 2048
)

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

// chatRequest is the JSON body for POST /chat/completions. All sampling
// parameters are sent explicitly; the upstream treats absent and zero
// differently for some of them.
type chatRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Stream           bool      `json:"stream"`
	Temperature      float64   `json:"temperature"`
	MaxTokens        int       `json:"max_tokens"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
	TopP             float64   `json:"top_p"`
}

func newChatRequest(messages []Message, opts Options, stream bool) chatRequest {
	opts = opts.withDefaults()
	return chatRequest{
		Model:            opts.Model,
		Messages:         messages,
		Stream:           stream,
		Temperature:      opts.Temperature,
		MaxTokens:        opts.MaxTokens,
		FrequencyPenalty: opts.FrequencyPenalty,
		PresencePenalty:  opts.PresencePenalty,
		TopP:             opts.TopP,
	}
}

// chatResponse is the JSON returned by a non-streaming completion.
type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Event is one increment of a streamed completion. Events arrive strictly
// ordered; the event with Done set is always last. A failed stream is
// signalled by a terminal event with Err set, never by a panic or a late
// error return.
type Event struct {
	Content string // cumulative assistant content so far
	Delta   string // the increment carried by this event
	Done    bool
	Err     error
}
