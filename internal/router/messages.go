package router

// Human-readable messaging per routing outcome. Messages never expose
// technical details, never blame the user, and suggest a next action.

var userMessages = map[string]string{
	"no_candidates":                      "I couldn't find information about this in the documents.",
	"weak_signal":                        "I couldn't find a confident answer in the documents.",
	"provider_unavailable":               "The answer below was assembled directly from document excerpts.",
	"retrieval_fault":                    "I encountered an issue searching the documents.",
	"no_candidates_provider_unavailable": "No relevant content was found and answer generation is currently unavailable.",
	"medium_confidence":                  "This answer is based on partial matches and may be incomplete.",
	"low_confidence":                     "This answer is based on a single weak match; treat it with caution.",
}

var actionHints = map[string]string{
	"no_candidates":                      "Try rephrasing your question or upload a document with more details.",
	"weak_signal":                        "Try rephrasing the question or using different keywords.",
	"provider_unavailable":               "Try again later for a generated answer.",
	"retrieval_fault":                    "Please try again; if the issue persists, check the search backend.",
	"no_candidates_provider_unavailable": "Upload documents first, or try again later.",
}

// userMessage returns the message for a machine reason, empty for reasons
// that need no caveat (high confidence).
func userMessage(reason string) string {
	return userMessages[reason]
}

// actionHint returns a constructive next step for degraded outcomes.
func actionHint(reason string) string {
	return actionHints[reason]
}

// fallbackPreface opens an extractive answer so it is never mistaken for a
// generated one.
const fallbackPreface = "Here are the most relevant passages from your documents:"
