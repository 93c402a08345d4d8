package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	dfslib "github.com/tomoyay1622/Distributed-File-System/clients/library"
	"github.com/tomoyay1622/Distributed-File-System/internal/protocol"
)

type MCPConfig struct {
	Communicator struct {
		Type    string `yaml:"type"`
		Framing string `yaml:"framing"`
	} `yaml:"communicator"`
	ServerAddress string `yaml:"server_address"`
}

func defaultConfig() *MCPConfig {
	cfg := &MCPConfig{ServerAddress: "localhost:8080"}
	cfg.Communicator.Type = "tcp"
	cfg.Communicator.Framing = string(protocol.FramingLine)
	return cfg
}

// LoadConfig reads path, writing a default config there first if it does
// not exist yet.
func LoadConfig(path string) (*MCPConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := defaultConfig()

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal default config: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// dial opens the one connection that backs the whole MCP session.
func dial(ctx context.Context, cfg *MCPConfig) (*dfslib.Client, error) {
	switch cfg.Communicator.Type {
	case "grpc":
		return dfslib.DialGRPC(ctx, cfg.ServerAddress)
	case "tcp", "":
		framing, err := protocol.ParseFraming(cfg.Communicator.Framing)
		if err != nil {
			return nil, err
		}
		return dfslib.DialTCP(ctx, cfg.ServerAddress, framing)
	default:
		return nil, fmt.Errorf("unknown communicator type %q", cfg.Communicator.Type)
	}
}

var modeNames = []string{string(protocol.ReadOnly), string(protocol.WriteOnly), string(protocol.ReadWrite)}

func addTools(s *server.MCPServer, client *dfslib.Client) {
	pathArg := mcp.WithString("path",
		mcp.Required(),
		mcp.Description("File path relative to the server's storage root"),
	)
	modeArg := mcp.WithString("mode",
		mcp.Required(),
		mcp.Description("Access mode"),
		mcp.Enum(modeNames...),
	)

	s.AddTool(mcp.NewTool("open_file",
		mcp.WithDescription("Open a file and return its current content. Writers are exclusive, readers share."),
		pathArg,
		modeArg,
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		mode, err := request.RequireString("mode")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content, err := client.Open(ctx, path, protocol.Mode(mode))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to open file: %v", err)), nil
		}
		return mcp.NewToolResultText(content), nil
	})

	s.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read the server's current view of an open file, including unsaved writes"),
		pathArg,
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content, err := client.Read(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read file: %v", err)), nil
		}
		return mcp.NewToolResultText(content), nil
	})

	s.AddTool(mcp.NewTool("write_file",
		mcp.WithDescription("Replace the content of an open file. Nothing is saved until close_file."),
		pathArg,
		mcp.WithString("content", mcp.Required(), mcp.Description("New file content")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content, err := request.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := client.Write(ctx, path, content); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to write file: %v", err)), nil
		}
		return mcp.NewToolResultText("OK"), nil
	})

	s.AddTool(mcp.NewTool("close_file",
		mcp.WithDescription("Close a file. For writable modes the given content is saved as the final content."),
		pathArg,
		modeArg,
		mcp.WithString("content", mcp.Description("Final content; ignored for READ_ONLY")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		mode, err := request.RequireString("mode")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content := request.GetString("content", "")
		if err := client.Close(ctx, path, protocol.Mode(mode), content); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to close file: %v", err)), nil
		}
		return mcp.NewToolResultText("OK"), nil
	})

	s.AddTool(mcp.NewTool("list_open_files",
		mcp.WithDescription("List the files this session currently holds open"),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		open := client.Opened()
		if len(open) == 0 {
			return mcp.NewToolResultText("No open files"), nil
		}
		var b strings.Builder
		b.WriteString("Open files:\n")
		for _, f := range open {
			fmt.Fprintf(&b, "- %s (%s)\n", f.Path, f.Mode)
		}
		return mcp.NewToolResultText(b.String()), nil
	})
}

func main() {
	configPath := pflag.String("config", filepath.Join(".", "config", "mcp.yaml"), "path to the MCP YAML config")
	pflag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	client, err := dial(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to %s: %v\n", cfg.ServerAddress, err)
		os.Exit(1)
	}
	defer client.Disconnect()

	s := server.NewMCPServer(
		"dfs-file-access",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	addTools(s, client)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
	}
}
