package apm

import "github.com/xiaot623/gogo/apm/internal/domain"

// JoinToolkits resolves the toolkit of each usage row by exact tool name.
// Unmatched rows keep a nil toolkit.
func JoinToolkits(usage []domain.ToolUsage, toolToToolkit map[string]string) []domain.ToolUsage {
	out := make([]domain.ToolUsage, len(usage))
	for i, u := range usage {
		if toolkit, ok := toolToToolkit[u.ToolName]; ok {
			name := toolkit
			u.Toolkit = &name
		}
		out[i] = u
	}
	return out
}
