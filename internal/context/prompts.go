package ctxengine

import "fmt"

// Side-call prompts.
const (
	summarySystemPrompt = "You are a specialized AI that summarizes context for an AI assistant without losing crucial details."

	summaryUserPrompt = "Write a concise summary of our conversation so far. Keep the key facts and the essence of the topics discussed."

	summaryExtendPrompt = " Here is the current summary; extend it with the new information instead of starting over:\n%s"

	factsSystemPrompt = "You are a specialized AI that extracts key facts for context memory."

	factsUserPrompt = "Extract any new important facts, requirements, constraints or agreements from this user message: '%s'. " +
		"If there is nothing material, return an empty string. Otherwise return a short list."

	factsCurrentPrompt = "Current facts:\n%s"

	factsMergePrompt = "\nMerge the new facts into the current ones without duplicates and return the complete updated list."

	summaryBlockPrefix = "Previous conversation summary: "

	factsBlockHeader = "\n\nIMPORTANT FACTS TO REMEMBER:\n"
)

// User-facing notices.
const (
	NoticeCompressing = "\n*[System: compressing older context to save tokens...]*\n\n"
	NoticeFacts       = "\n*[System: extracting and updating facts...]*\n\n"
)

func summaryInstruction(prior string) string {
	if prior == "" {
		return summaryUserPrompt
	}
	return summaryUserPrompt + fmt.Sprintf(summaryExtendPrompt, prior)
}

func factsInstruction(userText, prior string) string {
	p := fmt.Sprintf(factsUserPrompt, userText)
	if prior != "" {
		p += factsMergePrompt
	}
	return p
}

func fmtFactsCurrent(facts string) string {
	return fmt.Sprintf(factsCurrentPrompt, facts)
}
