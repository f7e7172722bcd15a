package chatbot

// System instructions selected by the role_mode field of a chat
// request. The instruction is prepended to every upstream call but
// never stored in the session.
var rolePrompts = map[string]string{
	"general": "You are a helpful general-purpose assistant. Answer clearly and concisely, " +
		"and format code or structured data in markdown.",
	"auditor": "You are an experienced audit assistant. Be precise, cite the relevant " +
		"standards when you can, and flag any assumption you have to make.",
	"developer": "You are a senior software engineer. Prefer working code examples, point " +
		"out pitfalls, and keep explanations short.",
	"writer": "You are a professional writing assistant. Improve clarity, tone and " +
		"structure without changing the author's meaning.",
}

const defaultRoleMode = "general"

// systemPrompt resolves a role mode to its instruction text. Unknown
// modes fall back to the general assistant.
func systemPrompt(mode string) string {
	if prompt, ok := rolePrompts[mode]; ok {
		return prompt
	}
	return rolePrompts[defaultRoleMode]
}
