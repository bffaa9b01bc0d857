package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/replymate/replymate/internal/mailstore"
)

// mailboxEntry is the on-disk shape of one email in a mailbox file.
type mailboxEntry struct {
	MessageID  string    `json:"message_id"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// FileFetcher reads incoming emails from a JSON file holding an array of
// messages. It stands in for a mailbox transport, which is out of scope;
// anything that can drop a JSON file can feed the pipeline.
type FileFetcher struct {
	Path string
}

var _ Fetcher = (*FileFetcher)(nil)

// Fetch parses the mailbox file. Entries without a message id are rejected
// because deduplication depends on it.
func (f *FileFetcher) Fetch(_ context.Context) ([]mailstore.Email, error) {
	content, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading mailbox file: %w", err)
	}

	var entries []mailboxEntry
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("parsing mailbox file %s: %w", f.Path, err)
	}

	emails := make([]mailstore.Email, 0, len(entries))
	for i, entry := range entries {
		if entry.MessageID == "" {
			return nil, fmt.Errorf("mailbox entry %d has no message_id", i)
		}
		emails = append(emails, mailstore.Email{
			MessageID:  entry.MessageID,
			Sender:     entry.Sender,
			Subject:    entry.Subject,
			Body:       entry.Body,
			ReceivedAt: entry.ReceivedAt,
		})
	}
	return emails, nil
}
