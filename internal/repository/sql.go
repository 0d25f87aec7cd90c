package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xiaot623/gogo/apm/internal/domain"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
}

func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// sqlStore implements Store on top of database/sql. The SQLite and Postgres
// stores share it and only differ in schema and placeholders.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

func now() time.Time {
	return time.Now().UTC()
}

// CreateEvent appends an event and fills in its id and timestamp.
func (s *sqlStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now()
	}
	property := "{}"
	if len(event.Property) > 0 {
		property = string(event.Property)
	}
	var toolName, toolKey sql.NullString
	if p, ok := event.Properties.(domain.ToolUsedProperties); ok {
		toolName = sql.NullString{String: p.ToolName, Valid: true}
		toolKey = sql.NullString{String: event.ToolKey, Valid: true}
	}
	return s.queryRow(ctx,
		`INSERT INTO events (org_id, agent_id, event_name, event_property, tool_name, tool_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		event.OrgID, event.AgentID, string(event.Name), property, toolName, toolKey, event.CreatedAt.UTC(),
	).Scan(&event.ID)
}

const eventColumns = `id, org_id, agent_id, event_name, event_property, tool_key, created_at`

// ListEvents returns an organisation's events in id order.
func (s *sqlStore) ListEvents(ctx context.Context, orgID int64, filter domain.EventFilter) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE org_id = ?`
	args := []any{orgID}

	if filter.AgentID > 0 {
		query += ` AND agent_id = ?`
		args = append(args, filter.AgentID)
	}
	if filter.AfterID > 0 {
		query += ` AND id > ?`
		args = append(args, filter.AfterID)
	}
	if len(filter.Names) > 0 {
		clause, nameArgs := inClause(filter.Names)
		query += ` AND event_name IN ` + clause
		args = append(args, nameArgs...)
	}

	query += ` ORDER BY id ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return s.queryEvents(ctx, query, args...)
}

// ListAgentStreams returns the named events of an organisation grouped by agent.
func (s *sqlStore) ListAgentStreams(ctx context.Context, orgID int64, names []domain.EventName) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE org_id = ?`
	args := []any{orgID}
	if len(names) > 0 {
		clause, nameArgs := inClause(names)
		query += ` AND event_name IN ` + clause
		args = append(args, nameArgs...)
	}
	query += ` ORDER BY agent_id ASC, id ASC`
	return s.queryEvents(ctx, query, args...)
}

func inClause(names []domain.EventName) (string, []any) {
	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, n := range names {
		placeholders[i] = "?"
		args[i] = string(n)
	}
	return "(" + strings.Join(placeholders, ",") + ")", args
}

func (s *sqlStore) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var name string
		var property []byte
		var toolKey sql.NullString
		if err := rows.Scan(&event.ID, &event.OrgID, &event.AgentID, &name, &property, &toolKey, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.Name = domain.EventName(name)
		event.Property = json.RawMessage(property)
		event.ToolKey = toolKey.String
		event.Properties = decodeStored(event.Name, event.Property)
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}

// decodeStored decodes properties that were validated at ingestion. Rows
// written before a schema existed fall back to a generic map.
func decodeStored(name domain.EventName, raw json.RawMessage) domain.Properties {
	props, err := domain.DecodeProperties(name, raw)
	if err == nil {
		return props
	}
	var generic domain.GenericProperties
	_ = json.Unmarshal(raw, &generic)
	return generic
}

// backfillToolColumns fills tool_name and tool_key on tool_used events stored
// before those columns existed.
func (s *sqlStore) backfillToolColumns(ctx context.Context) error {
	rows, err := s.query(ctx,
		`SELECT id, event_property FROM events WHERE event_name = ? AND tool_key IS NULL`,
		string(domain.EventToolUsed))
	if err != nil {
		return fmt.Errorf("failed to scan events for backfill: %w", err)
	}

	names := make(map[int64]string)
	for rows.Next() {
		var id int64
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return err
		}
		var p domain.ToolUsedProperties
		if json.Unmarshal(raw, &p) == nil {
			names[id] = p.ToolName
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for id, name := range names {
		if _, err := s.exec(ctx, `UPDATE events SET tool_name = ?, tool_key = ? WHERE id = ?`,
			name, domain.NormalizeToolName(name), id); err != nil {
			return fmt.Errorf("failed to backfill event %d: %w", id, err)
		}
	}
	return nil
}

// ToolUsageCounts aggregates tool_used events per tool name exactly as it was
// reported. Spellings that differ only in case or spacing get their own rows.
func (s *sqlStore) ToolUsageCounts(ctx context.Context, orgID int64) ([]domain.ToolUsage, error) {
	rows, err := s.query(ctx,
		`SELECT tool_name, COUNT(DISTINCT agent_id), COUNT(*) FROM events
		 WHERE org_id = ? AND event_name = ?
		 GROUP BY tool_name
		 ORDER BY tool_name`,
		orgID, string(domain.EventToolUsed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usage []domain.ToolUsage
	for rows.Next() {
		var u domain.ToolUsage
		var name sql.NullString
		if err := rows.Scan(&name, &u.UniqueAgents, &u.TotalUsage); err != nil {
			return nil, err
		}
		u.ToolName = name.String
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// ToolUsageByKey counts calls and distinct agents for one normalized tool name.
// It returns nil when no events match.
func (s *sqlStore) ToolUsageByKey(ctx context.Context, orgID int64, toolKey string) (*domain.ToolUsageSummary, error) {
	var summary domain.ToolUsageSummary
	err := s.queryRow(ctx,
		`SELECT COUNT(id), COUNT(DISTINCT agent_id) FROM events
		 WHERE org_id = ? AND event_name = ? AND tool_key = ?
		 GROUP BY tool_key`,
		orgID, string(domain.EventToolUsed), toolKey,
	).Scan(&summary.ToolCalls, &summary.ToolUniqueAgents)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// UpsertToolkit creates or updates a toolkit keyed by (org_id, name).
func (s *sqlStore) UpsertToolkit(ctx context.Context, toolkit *domain.Toolkit) error {
	if toolkit.CreatedAt.IsZero() {
		toolkit.CreatedAt = now()
	}
	return s.queryRow(ctx,
		`INSERT INTO toolkits (name, description, org_id, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (org_id, name) DO UPDATE SET description = excluded.description
		 RETURNING id`,
		toolkit.Name, toolkit.Description, toolkit.OrgID, toolkit.CreatedAt,
	).Scan(&toolkit.ID)
}

// UpsertTool creates or updates a tool keyed by (toolkit_id, name).
func (s *sqlStore) UpsertTool(ctx context.Context, tool *domain.Tool) error {
	return s.queryRow(ctx,
		`INSERT INTO tools (name, description, toolkit_id) VALUES (?, ?, ?)
		 ON CONFLICT (toolkit_id, name) DO UPDATE SET description = excluded.description
		 RETURNING id`,
		tool.Name, tool.Description, tool.ToolkitID,
	).Scan(&tool.ID)
}

// UpsertToolConfig records a toolkit config key. Existing values are kept.
func (s *sqlStore) UpsertToolConfig(ctx context.Context, cfg *domain.ToolConfig) error {
	_, err := s.exec(ctx,
		`INSERT INTO tool_configs (toolkit_id, key, key_type, is_required, is_secret, value)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (toolkit_id, key) DO UPDATE SET
		   key_type = excluded.key_type,
		   is_required = excluded.is_required,
		   is_secret = excluded.is_secret`,
		cfg.ToolkitID, cfg.Key, string(cfg.KeyType), cfg.IsRequired, cfg.IsSecret, cfg.Value)
	return err
}

// GetToolByName returns the first tool with the exact name, or nil.
func (s *sqlStore) GetToolByName(ctx context.Context, name string) (*domain.Tool, error) {
	var tool domain.Tool
	err := s.queryRow(ctx,
		`SELECT id, name, description, toolkit_id FROM tools WHERE name = ? ORDER BY id LIMIT 1`,
		name).Scan(&tool.ID, &tool.Name, &tool.Description, &tool.ToolkitID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tool, nil
}

// ListToolkits lists the toolkits of an organisation.
func (s *sqlStore) ListToolkits(ctx context.Context, orgID int64) ([]domain.Toolkit, error) {
	rows, err := s.query(ctx,
		`SELECT id, name, description, org_id, created_at FROM toolkits WHERE org_id = ? ORDER BY name`,
		orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var toolkits []domain.Toolkit
	for rows.Next() {
		var tk domain.Toolkit
		if err := rows.Scan(&tk.ID, &tk.Name, &tk.Description, &tk.OrgID, &tk.CreatedAt); err != nil {
			return nil, err
		}
		toolkits = append(toolkits, tk)
	}
	return toolkits, rows.Err()
}

// ListTools lists the tools of a toolkit.
func (s *sqlStore) ListTools(ctx context.Context, toolkitID int64) ([]domain.Tool, error) {
	rows, err := s.query(ctx,
		`SELECT id, name, description, toolkit_id FROM tools WHERE toolkit_id = ? ORDER BY id`,
		toolkitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tools []domain.Tool
	for rows.Next() {
		var t domain.Tool
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.ToolkitID); err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

// ListToolConfigs lists the config keys of a toolkit.
func (s *sqlStore) ListToolConfigs(ctx context.Context, toolkitID int64) ([]domain.ToolConfig, error) {
	rows, err := s.query(ctx,
		`SELECT toolkit_id, key, key_type, is_required, is_secret, value FROM tool_configs
		 WHERE toolkit_id = ? ORDER BY key`,
		toolkitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []domain.ToolConfig
	for rows.Next() {
		var c domain.ToolConfig
		var keyType string
		var value sql.NullString
		if err := rows.Scan(&c.ToolkitID, &c.Key, &keyType, &c.IsRequired, &c.IsSecret, &value); err != nil {
			return nil, err
		}
		c.KeyType = domain.ConfigKeyType(keyType)
		c.Value = value.String
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// ToolToolkitNames joins tools to their toolkits.
func (s *sqlStore) ToolToolkitNames(ctx context.Context) (map[string]string, error) {
	rows, err := s.query(ctx,
		`SELECT tools.name, toolkits.name FROM tools JOIN toolkits ON tools.toolkit_id = toolkits.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := make(map[string]string)
	for rows.Next() {
		var tool, toolkit string
		if err := rows.Scan(&tool, &toolkit); err != nil {
			return nil, err
		}
		pairs[tool] = toolkit
	}
	return pairs, rows.Err()
}

// CreateAgent inserts an agent and fills in its id.
func (s *sqlStore) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now()
	}
	return s.queryRow(ctx,
		`INSERT INTO agents (name, org_id, created_at) VALUES (?, ?, ?) RETURNING id`,
		agent.Name, agent.OrgID, agent.CreatedAt,
	).Scan(&agent.ID)
}

// GetAgent retrieves an agent by id, or nil.
func (s *sqlStore) GetAgent(ctx context.Context, agentID int64) (*domain.Agent, error) {
	var agent domain.Agent
	err := s.queryRow(ctx,
		`SELECT id, name, org_id, created_at FROM agents WHERE id = ?`,
		agentID).Scan(&agent.ID, &agent.Name, &agent.OrgID, &agent.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// ListAgentsWithResources returns the ids of agents owning resources on channel.
func (s *sqlStore) ListAgentsWithResources(ctx context.Context, channel domain.Channel) ([]int64, error) {
	rows, err := s.query(ctx,
		`SELECT DISTINCT agent_id FROM resources WHERE channel = ? ORDER BY agent_id`,
		string(channel))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetAgentConfig reads one agent configuration value.
func (s *sqlStore) GetAgentConfig(ctx context.Context, agentID int64, key string) (string, bool, error) {
	return s.getConfig(ctx,
		`SELECT value FROM agent_configurations WHERE agent_id = ? AND key = ?`, agentID, key)
}

// SetAgentConfig creates or replaces one agent configuration value.
func (s *sqlStore) SetAgentConfig(ctx context.Context, agentID int64, key, value string) error {
	_, err := s.exec(ctx,
		`INSERT INTO agent_configurations (agent_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (agent_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		agentID, key, value, now())
	return err
}

// GetOrgConfig reads one organisation configuration value.
func (s *sqlStore) GetOrgConfig(ctx context.Context, orgID int64, key string) (string, bool, error) {
	return s.getConfig(ctx,
		`SELECT value FROM configurations WHERE org_id = ? AND key = ?`, orgID, key)
}

// SetOrgConfig creates or replaces one organisation configuration value.
func (s *sqlStore) SetOrgConfig(ctx context.Context, orgID int64, key, value string) error {
	_, err := s.exec(ctx,
		`INSERT INTO configurations (org_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (org_id, key) DO UPDATE SET value = excluded.value`,
		orgID, key, value)
	return err
}

func (s *sqlStore) getConfig(ctx context.Context, query string, args ...any) (string, bool, error) {
	var value sql.NullString
	err := s.queryRow(ctx, query, args...).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value.String, value.Valid, nil
}

// CreateResource inserts a resource and fills in its id.
func (s *sqlStore) CreateResource(ctx context.Context, resource *domain.Resource) error {
	ts := now()
	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = ts
	}
	if resource.UpdatedAt.IsZero() {
		resource.UpdatedAt = resource.CreatedAt
	}
	return s.queryRow(ctx,
		`INSERT INTO resources (agent_id, name, path, storage_type, channel, summary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		resource.AgentID, resource.Name, resource.Path, string(resource.StorageType), string(resource.Channel),
		nullString(resource.Summary), resource.CreatedAt.UTC(), resource.UpdatedAt.UTC(),
	).Scan(&resource.ID)
}

const resourceColumns = `id, agent_id, name, path, storage_type, channel, summary, created_at, updated_at`

// GetResource retrieves a resource by id, or nil.
func (s *sqlStore) GetResource(ctx context.Context, resourceID int64) (*domain.Resource, error) {
	rows, err := s.query(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resources, err := scanResources(rows)
	if err != nil || len(resources) == 0 {
		return nil, err
	}
	return &resources[0], nil
}

// ListResources lists an agent's resources on a channel in id order.
func (s *sqlStore) ListResources(ctx context.Context, agentID int64, channel domain.Channel) ([]domain.Resource, error) {
	rows, err := s.query(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE agent_id = ? AND channel = ? ORDER BY id`,
		agentID, string(channel))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResources(rows)
}

func scanResources(rows *sql.Rows) ([]domain.Resource, error) {
	var resources []domain.Resource
	for rows.Next() {
		var r domain.Resource
		var storageType, channel string
		var summary sql.NullString
		if err := rows.Scan(&r.ID, &r.AgentID, &r.Name, &r.Path, &storageType, &channel, &summary, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.StorageType = domain.StorageType(storageType)
		r.Channel = domain.Channel(channel)
		if summary.Valid {
			r.Summary = &summary.String
		}
		r.CreatedAt = r.CreatedAt.UTC()
		r.UpdatedAt = r.UpdatedAt.UTC()
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

// UpdateResourceSummary sets or clears a resource summary.
func (s *sqlStore) UpdateResourceSummary(ctx context.Context, resourceID int64, summary *string) error {
	_, err := s.exec(ctx,
		`UPDATE resources SET summary = ? WHERE id = ?`,
		nullString(summary), resourceID)
	return err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
