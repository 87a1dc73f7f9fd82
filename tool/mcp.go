package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPServerConfig names an external MCP server to attach tools from, over
// the stdio transport.
type MCPServerConfig struct {
	// Name identifies this server in logs and discovery events.
	Name string

	// Command and Args launch the server subprocess.
	Command string
	Args    []string
	Env     map[string]string

	// Filter, if non-empty, limits which of the server's tools are
	// attached. An empty Filter attaches everything the server lists.
	Filter []string
}

// DiscoverMCPTools connects to an MCP server over stdio, lists its tools,
// and wraps each as a Tool. The caller is responsible for registering the
// returned tools and for closing the returned io.Closer-like cleanup func
// when the connection is no longer needed.
func DiscoverMCPTools(ctx context.Context, cfg MCPServerConfig) ([]Tool, func() error, error) {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, convertEnv(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, nil, fmt.Errorf("mcp: start %s: %w", cfg.Name, err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("mcp: start %s: %w", cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "crucibled", Version: "0.1.0-alpha"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("mcp: initialize %s: %w", cfg.Name, err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("mcp: list tools on %s: %w", cfg.Name, err)
	}

	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, name := range cfg.Filter {
			filterSet[name] = true
		}
	}

	tools := make([]Tool, 0, len(listResp.Tools))
	for _, t := range listResp.Tools {
		if filterSet != nil && !filterSet[t.Name] {
			continue
		}
		tools = append(tools, &mcpTool{
			client: mcpClient,
			name:   t.Name,
			desc:   t.Description,
			schema: convertSchema(t.InputSchema),
		})
	}

	return tools, mcpClient.Close, nil
}

// mcpTool wraps one tool exposed by an attached MCP server.
type mcpTool struct {
	client *client.Client
	name   string
	desc   string
	schema map[string]any
}

func (t *mcpTool) Name() string           { return t.name }
func (t *mcpTool) Description() string    { return t.desc }
func (t *mcpTool) Schema() map[string]any { return t.schema }

func (t *mcpTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	resp, err := t.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp: call %s: %w", t.name, err)
	}

	result := make(map[string]any)
	if resp.IsError {
		for _, c := range resp.Content {
			if tc, ok := c.(mcp.TextContent); ok {
				result["error"] = tc.Text
				break
			}
		}
		if result["error"] == nil {
			result["error"] = "unknown error"
		}
		return result, nil
	}

	var texts []string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	switch len(texts) {
	case 0:
	case 1:
		result["result"] = texts[0]
	default:
		result["results"] = texts
	}
	return result, nil
}

func convertEnv(env map[string]string) []string {
	if env == nil {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

var _ Tool = (*mcpTool)(nil)
