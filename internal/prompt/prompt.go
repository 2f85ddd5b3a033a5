// Package prompt turns ranked chunks into the context block, instruction,
// and citation sets that make up a completion request. It never calls the
// completion service itself; the conversational layer owns that.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"tabletop-rules-rag/internal/models"
	"tabletop-rules-rag/internal/search"
)

// Delimiter separates chunks inside the assembled context block.
const Delimiter = "\n\n---\n\n"

// setupKeywords trigger the walkthrough instruction. The list is fixed; the
// match is a case-insensitive substring test.
var setupKeywords = []string{
	"setup",
	"set up",
	"start",
	"beginning",
	"prepare",
	"how to play",
	"getting started",
}

// Instruction selects how the model is told to answer.
type Instruction string

const (
	// InstructionSetupWalkthrough asks for an exhaustive numbered setup guide.
	InstructionSetupWalkthrough Instruction = "setup_walkthrough"

	// InstructionDirectAnswer asks for a direct answer to the question.
	InstructionDirectAnswer Instruction = "direct_answer"
)

const setupInstruction = `This is a SETUP question. Provide a complete, step-by-step walkthrough of the setup process.
- Use numbered steps
- Be thorough and detailed
- Include all components that need to be placed
- Mention player-specific setup (what each player gets/does)
- Cover any special setup for different player counts if mentioned`

const directInstruction = `Provide a clear, direct answer to the specific question asked.`

// Payload is a fully assembled completion request plus the citation material
// the caller displays alongside the answer.
type Payload struct {
	Prompt      string
	Instruction Instruction
	SourcePages []int
	SourceTypes []models.SourceType
	MaxTokens   int
}

// IsSetupQuestion reports whether the question reads like a setup question.
func IsSetupQuestion(question string) bool {
	lower := strings.ToLower(question)
	for _, kw := range setupKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// BuildContext formats ranked chunks into one context string. Each chunk is
// labeled with its source-type and page so the model can cite pages.
func BuildContext(scored []search.ScoredChunk) string {
	parts := make([]string, len(scored))
	for i, s := range scored {
		parts[i] = fmt.Sprintf("[%s, Page %d]\n%s", s.Chunk.SourceType, s.Chunk.Page, s.Chunk.Text)
	}
	return strings.Join(parts, Delimiter)
}

// SourcePages returns the distinct pages across the chunks, sorted ascending.
func SourcePages(scored []search.ScoredChunk) []int {
	seen := make(map[int]bool)
	var pages []int
	for _, s := range scored {
		if !seen[s.Chunk.Page] {
			seen[s.Chunk.Page] = true
			pages = append(pages, s.Chunk.Page)
		}
	}
	sort.Ints(pages)
	return pages
}

// SourceTypes returns the distinct source-types present, in first-seen order.
func SourceTypes(scored []search.ScoredChunk) []models.SourceType {
	seen := make(map[models.SourceType]bool)
	var types []models.SourceType
	for _, s := range scored {
		if !seen[s.Chunk.SourceType] {
			seen[s.Chunk.SourceType] = true
			types = append(types, s.Chunk.SourceType)
		}
	}
	return types
}

// Build assembles the completion payload for a question about one game.
func Build(gameTitle, question string, scored []search.ScoredChunk, maxTokens int) Payload {
	instruction := InstructionDirectAnswer
	instructionText := directInstruction
	if IsSetupQuestion(question) {
		instruction = InstructionSetupWalkthrough
		instructionText = setupInstruction
	}

	var b strings.Builder
	b.WriteString("You are a helpful board game rules assistant. Answer the customer's question based ONLY on the rulebook excerpts provided below.\n\n")
	b.WriteString(instructionText)
	b.WriteString("\n\nRules for answering:\n")
	b.WriteString("- Be friendly and conversational\n")
	b.WriteString("- Always cite page numbers in the format: (p. X) or (pp. X-Y)\n")
	b.WriteString("- If the answer isn't in the excerpts, say \"I don't see that specific information in the rulebook. Let me check with staff for you.\"\n")
	b.WriteString("- If the question is unclear, ask ONE clarifying question\n")
	b.WriteString("- Never make up rules that aren't in the rulebook\n\n")
	b.WriteString(fmt.Sprintf("RULEBOOK EXCERPTS FOR %s:\n", strings.ToUpper(gameTitle)))
	b.WriteString(BuildContext(scored))
	b.WriteString(fmt.Sprintf("\n\nCUSTOMER QUESTION: %s\n\nYOUR ANSWER:", question))

	return Payload{
		Prompt:      b.String(),
		Instruction: instruction,
		SourcePages: SourcePages(scored),
		SourceTypes: SourceTypes(scored),
		MaxTokens:   maxTokens,
	}
}
