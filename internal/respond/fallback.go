package respond

import (
	"fmt"
	"strings"
)

const fallbackTemplate = `Dear %s,

Thank you for contacting our support team. We have received your message and appreciate you taking the time to contact us.

Our team will review your inquiry and get back to you with a detailed response within 24 hours. We're committed to providing you with the best possible assistance.

If you have any urgent concerns in the meantime, please don't hesitate to contact us.

Best regards,
Support Team`

// FallbackReply renders the templated escalation reply used when no grounded
// knowledge is available. sender may be a raw address header such as
// "Jane Doe <jane@example.com>"; anything that does not look like a plain
// name degrades to "Customer".
func FallbackReply(sender string) string {
	name, _, _ := strings.Cut(sender, "<")
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "@") {
		name = "Customer"
	}
	return fmt.Sprintf(fallbackTemplate, name)
}
