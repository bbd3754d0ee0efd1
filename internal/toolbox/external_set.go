package toolbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/internal/mcp"
	"github.com/hearthai/hearth/pkg/models"
)

// ExternalSet is the External ToolSet variant: tools proxied to one or
// more MCP servers through an mcp.Manager. The registry connects and
// disconnects it via Connectable; ListTools/CallTool are served live
// from whichever servers are currently connected, since an MCP
// server's tool list can change out from under a long-running process.
type ExternalSet struct {
	id      string
	manager *mcp.Manager
}

// NewExternalSet wraps an already-configured mcp.Manager as an
// External tool set. cfg drives which servers Connect/Disconnect
// reach; logger defaults to slog.Default() when nil.
func NewExternalSet(id string, cfg *mcp.Config, logger *slog.Logger) *ExternalSet {
	return &ExternalSet{id: id, manager: mcp.NewManager(cfg, logger)}
}

func (s *ExternalSet) ID() string                    { return s.id }
func (s *ExternalSet) Name() string                  { return s.id }
func (s *ExternalSet) Variant() models.ToolSetVariant { return models.ToolSetExternal }

// Connect starts every configured MCP server flagged auto_start, per
// mcp.Manager.Start's existing fault-isolated connect loop.
func (s *ExternalSet) Connect(ctx context.Context) error {
	return s.manager.Start(ctx)
}

// Disconnect closes every connected MCP server's client.
func (s *ExternalSet) Disconnect(ctx context.Context) error {
	return s.manager.Stop()
}

// ListTools flattens every connected server's advertised tools into
// ToolDescriptors, namespacing each tool's registry name as
// "<serverID>.<toolName>" so identically-named tools on two servers
// don't collide before the registry's own conflict check ever runs.
func (s *ExternalSet) ListTools(ctx context.Context) ([]models.ToolDescriptor, error) {
	var out []models.ToolDescriptor
	for serverID, tools := range s.manager.AllTools() {
		for _, tool := range tools {
			params, err := schemaToParams(tool.InputSchema)
			if err != nil {
				return nil, herr.Wrap(herr.Internal, err, "decode MCP input schema for "+tool.Name)
			}
			out = append(out, models.ToolDescriptor{
				Name:             serverID + "." + tool.Name,
				Description:      tool.Description,
				ShortDescription: tool.Description,
				Parameters:       params,
				Enabled:          true,
			})
		}
	}
	return out, nil
}

// CallTool dispatches name (as namespaced by ListTools) to its owning
// server, translating the MCP tool-result shape into models.ToolResult.
func (s *ExternalSet) CallTool(ctx context.Context, name string, args any, tctx models.ToolContext) (models.ToolResult, error) {
	serverID, toolName, ok := splitNamespaced(name)
	if !ok {
		return models.ToolResult{OK: false, Error: "tool not namespaced: " + name}, nil
	}
	argMap, _ := args.(map[string]any)
	result, err := s.manager.CallTool(ctx, serverID, toolName, argMap)
	if err != nil {
		return models.ToolResult{OK: false, Error: err.Error()}, nil
	}
	if result.IsError {
		return models.ToolResult{OK: false, Error: joinToolResultText(result)}, nil
	}
	return models.ToolResult{OK: true, Data: map[string]any{"content": result.Content}}, nil
}

// CheckHealth reports healthy when at least one configured server is
// connected, degraded when none are but the set isn't empty, and
// healthy trivially when the set has no servers configured at all
// (there is nothing to be unhealthy about).
func (s *ExternalSet) CheckHealth(ctx context.Context) (models.HealthStatus, error) {
	statuses := s.manager.Status()
	if len(statuses) == 0 {
		return models.HealthStatus{Status: "healthy", LastCheck: time.Now()}, nil
	}
	connected := 0
	for _, st := range statuses {
		if st.Connected {
			connected++
		}
	}
	switch {
	case connected == len(statuses):
		return models.HealthStatus{Status: "healthy", LastCheck: time.Now()}, nil
	case connected > 0:
		return models.HealthStatus{Status: "degraded", LastCheck: time.Now()}, nil
	default:
		return models.HealthStatus{Status: "unhealthy", LastCheck: time.Now(), Error: "no MCP servers connected"}, nil
	}
}

func schemaToParams(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return params, nil
}

func splitNamespaced(name string) (serverID, toolName string, ok bool) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i], name[i+1:], true
		}
	}
	return "", "", false
}

func joinToolResultText(result *mcp.ToolCallResult) string {
	if result == nil {
		return "MCP tool call failed"
	}
	for _, c := range result.Content {
		if c.Text != "" {
			return c.Text
		}
	}
	return "MCP tool call failed"
}
