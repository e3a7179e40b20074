package mcp

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/server"
)

// ServeStdio serves s over the given streams until ctx is done or in closes
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}

// NewHTTPServer wraps s in a streamable HTTP transport mounted at path
func NewHTTPServer(s *server.MCPServer, path string) *server.StreamableHTTPServer {
	if path == "" {
		path = "/mcp"
	}
	return server.NewStreamableHTTPServer(s, server.WithEndpointPath(path))
}
