package prompt

import (
	"fmt"
	"strings"

	"rag-chat-be/pkg/llm"
	"rag-chat-be/pkg/rag/vectorindex"
)

// SystemInstructions opens every generation request.
const SystemInstructions = `You are an AI assistant inside a professional conversational application. Give accurate, context-aware and well-structured answers, and keep strictly to the conversation you are in.

Core principles:
- Every chat session is independent; never bring in information from other chats
- Stay aware of the full message history of the current chat
- Be clear, concise and professional
- Use structure where it helps (headings, bullet points, code blocks)
- No emojis or casual tone unless the user asks for them
- Prefer correctness over speed, and say so when you are unsure

When context from uploaded files is provided:
- Treat the uploaded files as authoritative for this chat
- Say explicitly when your answer draws on a file
- Reason across several files when more than one is relevant

Formatting rules for mathematics:
- Write formulas in plain, human-readable text
- Use Unicode symbols for notation: ², ³, √, ≈, ≤, ≥, ∞, π, Σ, Δ, α, β, γ
- Write fractions with a slash (a/b) and powers with ^ or superscripts (E = mc²)
- Use underscores for subscripts when needed (x_1, x_2)
- Never use LaTeX such as \(, \), \[, \] or \frac{}{}

Correct: E = mc², v = v₀ + at, x = (-b ± √(b² - 4ac)) / 2a, acceleration = Δv / Δt
Wrong: \(E = mc^2\), \[v = v_0 + at\], \frac{-b \pm \sqrt{b^2 - 4ac}}{2a}

Your answer is streamed to the user as it is produced, so lead with the core information and follow with details.`

// DefaultHistoryWindow is how many prior turns the model sees.
const DefaultHistoryWindow = 10

// titleInputLimit caps how much of the first message the title prompt quotes.
const titleInputLimit = 100

const unknownSource = "Unknown"

// Window returns the last n turns of history in their original order.
func Window(history []llm.Message, n int) []llm.Message {
	if n <= 0 {
		return []llm.Message{}
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]llm.Message, len(history))
	copy(out, history)
	return out
}

// Builder composes the message list for one generation.
type Builder struct {
	historyWindow int
}

func NewBuilder(historyWindow int) *Builder {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &Builder{historyWindow: historyWindow}
}

// BuildMessages returns the system message, the windowed history with roles
// mapped to user/assistant, and the final user message. Retrieved chunks are
// placed in the final message ahead of the question.
func (b *Builder) BuildMessages(query string, history []llm.Message, retrieved []vectorindex.ChunkRecord) []llm.Message {
	window := Window(history, b.historyWindow)

	messages := make([]llm.Message, 0, len(window)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: SystemInstructions})
	for _, turn := range window {
		role := llm.RoleAssistant
		if turn.Role == llm.RoleUser {
			role = llm.RoleUser
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: UserMessage(query, retrieved)})
	return messages
}

// UserMessage renders the final user turn.
func UserMessage(query string, retrieved []vectorindex.ChunkRecord) string {
	if len(retrieved) == 0 {
		return query
	}

	blocks := make([]string, len(retrieved))
	for i, record := range retrieved {
		source := record.Metadata.SourceFilename
		if source == "" {
			source = unknownSource
		}
		blocks[i] = fmt.Sprintf("Document: %s\n%s", source, record.Content)
	}

	var sb strings.Builder
	sb.WriteString("Based on the following context from uploaded files:\n\n")
	sb.WriteString(strings.Join(blocks, "\n\n"))
	sb.WriteString("\n\nUser Question: ")
	sb.WriteString(query)
	return sb.String()
}

// TitlePrompt asks for a short title derived from the opening message.
func TitlePrompt(firstMessage string) string {
	runes := []rune(firstMessage)
	if len(runes) > titleInputLimit {
		runes = runes[:titleInputLimit]
	}
	return fmt.Sprintf(
		"Generate a concise 3-5 word title for a chat that starts with: '%s'. Return only the title, no quotes or extra text.",
		string(runes),
	)
}
