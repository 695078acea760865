// Package response renders a tools/call result into text suitable for
// feeding back into the conversation.
package response

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Render extracts readable output from the raw result object returned
// by a transport. The second return is the server's isError flag: the
// tool ran but reports a failure the model should see.
func Render(raw json.RawMessage) (string, bool, error) {
	if len(raw) == 0 {
		return "", false, nil
	}

	result, err := mcp.ParseCallToolResult(&raw)
	if err != nil {
		return "", false, fmt.Errorf("parsing tool result: %w", err)
	}

	if result.StructuredContent != nil {
		if data, err := json.Marshal(result.StructuredContent); err == nil {
			return string(data), result.IsError, nil
		}
	}

	var parts []string
	for _, content := range result.Content {
		if rendered, ok := renderContent(content); ok {
			parts = append(parts, rendered)
			continue
		}
		if raw, err := json.Marshal(content); err == nil {
			parts = append(parts, string(raw))
		}
	}
	return strings.Join(parts, "\n"), result.IsError, nil
}

func renderContent(content mcp.Content) (string, bool) {
	switch c := content.(type) {
	case mcp.TextContent:
		return c.Text, true
	case *mcp.TextContent:
		return c.Text, true
	case mcp.ImageContent:
		return fmt.Sprintf("[image %s, %d bytes base64]", c.MIMEType, len(c.Data)), true
	case *mcp.ImageContent:
		return fmt.Sprintf("[image %s, %d bytes base64]", c.MIMEType, len(c.Data)), true
	case mcp.EmbeddedResource:
		return renderResource(c.Resource)
	case *mcp.EmbeddedResource:
		return renderResource(c.Resource)
	default:
		return "", false
	}
}

func renderResource(res mcp.ResourceContents) (string, bool) {
	switch r := res.(type) {
	case mcp.TextResourceContents:
		return r.Text, true
	case *mcp.TextResourceContents:
		return r.Text, true
	case mcp.BlobResourceContents:
		return fmt.Sprintf("[resource %s, %s]", r.URI, r.MIMEType), true
	case *mcp.BlobResourceContents:
		return fmt.Sprintf("[resource %s, %s]", r.URI, r.MIMEType), true
	default:
		return "", false
	}
}
