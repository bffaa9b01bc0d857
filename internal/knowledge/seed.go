package knowledge

import (
	"context"
	"fmt"
)

// seedDocuments is the starter FAQ set installed into an empty store so
// retrieval has something to work with before any operator-added content.
var seedDocuments = []Document{
	{
		ID:       "seed-account-access",
		Title:    "Account Access Issues",
		Body:     "If you're having trouble accessing your account, please try resetting your password using the 'Forgot Password' link on the login page. If the issue persists, contact our support team with your account email address.",
		Category: "account",
		Tags:     []string{"account", "login", "password", "access"},
	},
	{
		ID:       "seed-billing-questions",
		Title:    "Billing Questions",
		Body:     "For billing inquiries, please check your account dashboard for recent transactions. If you have questions about charges or need to update payment methods, our billing team can assist you within 24 hours.",
		Category: "billing",
		Tags:     []string{"billing", "payment", "charges", "invoice"},
	},
	{
		ID:       "seed-technical-support",
		Title:    "Technical Support",
		Body:     "For technical issues, please provide detailed information about the problem, including error messages, browser type, and steps to reproduce the issue. Our technical team will investigate and provide a solution.",
		Category: "technical",
		Tags:     []string{"technical", "error", "bug", "issue", "support"},
	},
	{
		ID:       "seed-feature-requests",
		Title:    "Feature Requests",
		Body:     "We welcome feature requests and suggestions. Please describe the feature you'd like to see, how it would benefit you, and any specific requirements. Our product team reviews all requests.",
		Category: "product",
		Tags:     []string{"feature", "request", "suggestion", "improvement"},
	},
	{
		ID:       "seed-refund-policy",
		Title:    "Refund Policy",
		Body:     "Refunds are processed within 5-7 business days for eligible requests. To request a refund, please contact our support team with your order number and reason for the refund request.",
		Category: "billing",
		Tags:     []string{"refund", "money", "return", "policy"},
	},
}

// Seed installs the starter documents into an empty store. A store that
// already holds documents is left untouched so operator edits survive
// restarts.
func (s *Store) Seed(ctx context.Context) error {
	count, err := s.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting documents before seeding: %w", err)
	}
	if count > 0 {
		s.logger.Debug("knowledge store already populated, skipping seed", "documents", count)
		return nil
	}

	for _, doc := range seedDocuments {
		if _, err := s.Put(ctx, doc); err != nil {
			return fmt.Errorf("seeding document %q: %w", doc.ID, err)
		}
	}
	s.logger.Info("seeded starter knowledge documents", "count", len(seedDocuments))
	return nil
}
