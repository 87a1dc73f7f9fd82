package turn

import (
	"context"
	"strings"

	"github.com/kadirpekel/crucible/event"
	"github.com/kadirpekel/crucible/interaction"
	"github.com/kadirpekel/crucible/reactor"
)

// RegisterPermissionHandler wires the interaction protocol into the
// reactor as an ordinary handler on the "tool:called" pattern — the
// permission check is not special-cased by the dispatch loop the way the
// original implementation's interaction modal is wired directly into the
// executor; it is just another handler that can Cancel the chain.
//
// The handler reads the session id the turn engine stamped onto the
// event's payload, classifies the call into a PermissionRequest by tool
// name, and blocks on protocol.RaisePermission. A denied or cancelled
// response becomes Cancelled(e); ctx cancellation (turn cancelled by the
// user) degrades to a SoftError rather than hanging the dispatch forever.
func RegisterPermissionHandler(r *reactor.Reactor, protocol *interaction.Protocol) {
	h := reactor.NewHandler("go:turn:permission_check", "tool:called", func(ctx context.Context, hctx *reactor.Context, e event.Event) reactor.Result {
		sessionID, _ := e.Payload["session_id"].(string)
		req, ok := classifyPermission(e)
		if !ok {
			return reactor.Continue(e)
		}

		resp, err := protocol.RaisePermission(ctx, sessionID, req)
		if err != nil {
			return reactor.SoftError(e, "permission request interrupted: "+err.Error())
		}
		if !resp.Allowed {
			return reactor.Cancelled(e)
		}
		return reactor.Continue(e)
	})
	h.Priority = 10 // run early: nothing downstream should see an unauthorized call as "continued"
	r.Register(h)
}

// classifyPermission maps a tool_called event to the PermissionRequest
// shape its tool name implies. Tools outside the three built-ins fall back
// to the generic PermTool kind, keyed on name and a sorted view of args.
func classifyPermission(e event.Event) (interaction.PermissionRequest, bool) {
	name, _ := e.Payload["name"].(string)
	args, _ := e.Payload["args"].(map[string]any)

	switch name {
	case "bash":
		command, _ := args["command"].(string)
		return interaction.PermissionRequest{
			Kind:       interaction.PermBash,
			BashTokens: strings.Fields(command),
		}, true
	case "read_file":
		path, _ := args["path"].(string)
		return interaction.PermissionRequest{
			Kind:         interaction.PermRead,
			ReadSegments: strings.Split(strings.Trim(path, "/"), "/"),
		}, true
	case "write_file":
		path, _ := args["path"].(string)
		return interaction.PermissionRequest{
			Kind:          interaction.PermWrite,
			WriteSegments: strings.Split(strings.Trim(path, "/"), "/"),
		}, true
	case "":
		return interaction.PermissionRequest{}, false
	default:
		return interaction.PermissionRequest{
			Kind:     interaction.PermTool,
			ToolName: name,
			ToolArgs: args,
		}, true
	}
}
