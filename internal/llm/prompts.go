package llm

// SummarizePrompt asks for a structured memory candidate for one chat message.
// The single %s is the raw message text.
const SummarizePrompt = `You are a memory summarizer for a personal assistant. Read the user's message and decide what is worth remembering about them.

Return:
- summary: one sentence about the user, at most 100 characters
- topics: 1 to 5 lowercase single-word topic tags
- importance: a number between 0 and 1 (how durable and salient this is)
- class: one of "deep" (identity, long-term goals, companies, life facts), "relationship" (people in the user's life), "short" (near-term plans, passing details)

Respond ONLY with JSON. No markdown, no explanation. Example:
{"summary":"Founded a robotics startup in Berlin","topics":["startup","robotics","berlin"],"importance":0.85,"class":"deep"}

Message:
%s`
