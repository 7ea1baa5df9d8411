package models

// InsufficientInformationAnswer is returned whenever retrieval comes back
// empty. The completion model is never called in that case.
const InsufficientInformationAnswer = "I don't have enough information in the uploaded documents to answer that. Try rephrasing the question or uploading the relevant document."

// ThinkTag matches the reasoning block some local models emit before the
// actual answer; it is stripped from completions.
const ThinkTag = `(?s)<think>.*?</think>`

var (
	QAPromptTemplate = `You are UniConnect, an AI assistant specialized in helping international students navigate university processes, immigration documents, and academic requirements.

Answer the question using ONLY the excerpts below. Each excerpt starts with a marker like [S1]. When you use an excerpt, cite its marker in your answer. If the excerpts do not contain the answer, say so honestly.

Excerpts:
%s
Question: %s

Provide a helpful, accurate, and friendly response with the [S#] markers of the excerpts you used.`

	RewritePromptTemplate = `Given the conversation so far, rewrite the follow-up question into a single self-contained question that can be understood without the conversation. Keep the user's intent and wording where possible. If the question is already self-contained, return it unchanged. Answer only with the rewritten question and nothing else.

Conversation:
%s
Follow-up question: %s`
)
