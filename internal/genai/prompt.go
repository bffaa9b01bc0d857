package genai

import (
	"fmt"
	"strings"
)

// systemPrompt frames every generation request.
const systemPrompt = "You are a professional customer support representative " +
	"who writes empathetic and helpful email replies using the provided " +
	"knowledge base information."

// BuildPrompt renders a generation request into the user prompt sent to
// the model. The knowledge context is a numbered block so the model can
// reference entries, followed by tone and formatting instructions.
func BuildPrompt(req GenerateRequest) string {
	var b strings.Builder

	b.WriteString("Customer message:\n")
	b.WriteString(req.Query)
	b.WriteString("\n\n")

	if req.Sentiment != "" || req.Category != "" {
		b.WriteString("Message analysis:\n")
		if req.Sentiment != "" {
			fmt.Fprintf(&b, "- Sentiment: %s\n", req.Sentiment)
		}
		if req.Category != "" {
			fmt.Fprintf(&b, "- Category: %s\n", req.Category)
		}
		b.WriteString("\n")
	}

	if len(req.Context) > 0 {
		b.WriteString("Relevant knowledge base information:\n")
		for i, excerpt := range req.Context {
			fmt.Fprintf(&b, "%d. %s (%s): %s\n", i+1, excerpt.Title, excerpt.Category, excerpt.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString(`Instructions:
1. Use the knowledge base information above to give an accurate, helpful answer
2. Only state facts supported by the knowledge base information
3. Maintain a professional and empathetic tone
4. If the customer seems frustrated, acknowledge their feelings
5. Provide specific next steps when possible
6. Keep the reply concise but complete
7. End with an offer to help further

Write the reply email body:`)

	return b.String()
}
