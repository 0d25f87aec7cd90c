package domain

import "time"

// Agent is an autonomous agent owned by an organisation.
type Agent struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OrgID     int64     `json:"org_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Resource is a file attached to or produced by an agent.
type Resource struct {
	ID          int64       `json:"id"`
	AgentID     int64       `json:"agent_id"`
	Name        string      `json:"name"`
	Path        string      `json:"path"`
	StorageType StorageType `json:"storage_type"`
	Channel     Channel     `json:"channel"`
	Summary     *string     `json:"summary,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Document is a chunk of resource text handed to the indexer and summarizer.
type Document struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
