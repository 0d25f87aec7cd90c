package toolkit

import "github.com/xiaot623/gogo/apm/internal/domain"

func init() {
	MustRegister(JiraToolkit{})
	MustRegister(ThinkingToolkit{})
	MustRegister(CodingToolkit{})
}

// JiraToolkit integrates with a Jira instance.
type JiraToolkit struct{}

func (JiraToolkit) Name() string        { return "Jira Toolkit" }
func (JiraToolkit) Description() string { return "Toolkit containing tools for Jira integration" }

func (JiraToolkit) Tools() []ToolSpec {
	return []ToolSpec{
		{Name: "CreateJiraIssue", Description: "Create a new Jira issue"},
		{Name: "EditJiraIssue", Description: "Edit an existing Jira issue"},
		{Name: "GetJiraProjects", Description: "List the projects of the Jira instance"},
		{Name: "SearchJiraIssues", Description: "Search Jira issues with JQL"},
	}
}

func (JiraToolkit) EnvKeys() []ConfigKey {
	return []ConfigKey{
		{Key: "JIRA_INSTANCE_URL", KeyType: domain.ConfigKeyTypeString, IsRequired: true, IsSecret: true},
		{Key: "JIRA_USERNAME", KeyType: domain.ConfigKeyTypeString, IsRequired: true, IsSecret: true},
		{Key: "JIRA_API_TOKEN", KeyType: domain.ConfigKeyTypeString, IsRequired: true, IsSecret: true},
	}
}

// ThinkingToolkit lets an agent reason about a problem before acting.
type ThinkingToolkit struct{}

func (ThinkingToolkit) Name() string { return "Thinking Toolkit" }
func (ThinkingToolkit) Description() string {
	return "Toolkit containing tools for intelligent problem-solving"
}

func (ThinkingToolkit) Tools() []ToolSpec {
	return []ToolSpec{
		{Name: "ThinkingTool", Description: "Reason about the current task and plan the next step"},
	}
}

func (ThinkingToolkit) EnvKeys() []ConfigKey { return nil }

// CodingToolkit writes specifications, code and tests into the workspace.
type CodingToolkit struct{}

func (CodingToolkit) Name() string        { return "CodingToolkit" }
func (CodingToolkit) Description() string { return "Toolkit containing tools for writing code" }

func (CodingToolkit) Tools() []ToolSpec {
	return []ToolSpec{
		{Name: "CodingTool", Description: "Write code files from a specification"},
		{Name: "WriteSpecTool", Description: "Write a technical specification for a task"},
		{Name: "WriteTestTool", Description: "Write unit tests for a specification"},
	}
}

func (CodingToolkit) EnvKeys() []ConfigKey { return nil }
