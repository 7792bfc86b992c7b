package webhookingester

import "time"

// PushPayload is the push notification shape accepted by the webhook
// endpoint. It is a subset of the GitHub push event: only the fields the
// ingester reads are declared.
type PushPayload struct {
	Repository PushRepository `json:"repository"`
	Commits    []PushCommit   `json:"commits"`
}

// PushRepository identifies the repository a push belongs to.
type PushRepository struct {
	// FullName is "owner/repo".
	FullName string `json:"full_name"`
}

// PushCommit is one commit in a push, with its file-level change lists.
type PushCommit struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Added     []string  `json:"added"`
	Removed   []string  `json:"removed"`
	Modified  []string  `json:"modified"`
}

// IngestResponse is the body returned for an accepted push.
type IngestResponse struct {
	EventsCreated int      `json:"events_created"`
	EventIDs      []string `json:"event_ids,omitempty"`
}
