package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/rpc"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-plugin"
	"github.com/rs/zerolog"
)

// Handshake is used to verify that the plugin and host are compatible
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "ACTION_SERVER_PLUGIN",
	MagicCookieValue: "action-server-plugin-v1",
}

const pluginName = "action"

// PluginMap is the map of plugins we can dispense
var PluginMap = map[string]plugin.Plugin{
	pluginName: &ActionRPCPlugin{},
}

// ActionPlugin is implemented by plugin executables that serve actions.
type ActionPlugin interface {
	Run(ctx context.Context, req *PluginRequest) (*PluginResponse, error)
}

// PluginRequest asks a plugin to run one action.
type PluginRequest struct {
	Action  string         `json:"action"`
	Tracker map[string]any `json:"tracker"`
	Domain  map[string]any `json:"domain"`
}

// PluginResponse is a plugin's answer. A non-empty Reject declines the run
// with that message.
type PluginResponse struct {
	Events    []Event   `json:"events"`
	Responses []Message `json:"responses,omitempty"`
	Reject    string    `json:"reject,omitempty"`
}

// Serve runs impl as a plugin. Call it from the plugin executable's main.
func Serve(impl ActionPlugin) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			pluginName: &ActionRPCPlugin{Impl: impl},
		},
	})
}

// ActionRPCPlugin is the implementation of plugin.Plugin for RPC
type ActionRPCPlugin struct {
	Impl ActionPlugin
}

func (p *ActionRPCPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &ActionRPCServer{Impl: p.Impl}, nil
}

func (p *ActionRPCPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &ActionRPCClient{client: c}, nil
}

// RunArgs carries a JSON encoded PluginRequest. Tracker and domain are
// arbitrary JSON, which gob cannot encode as interface values.
type RunArgs struct {
	Payload []byte
}

// RunResp carries a JSON encoded PluginResponse or an error message.
type RunResp struct {
	Payload []byte
	Error   string
}

// ActionRPCServer is the RPC server that ActionRPCClient talks to
type ActionRPCServer struct {
	Impl ActionPlugin
}

func (s *ActionRPCServer) Run(args *RunArgs, resp *RunResp) error {
	var req PluginRequest
	if err := json.Unmarshal(args.Payload, &req); err != nil {
		resp.Error = fmt.Sprintf("failed to decode request: %v", err)
		return nil
	}

	out, err := s.Impl.Run(context.Background(), &req)
	if err != nil {
		resp.Error = err.Error()
		return nil
	}

	payload, err := json.Marshal(out)
	if err != nil {
		resp.Error = fmt.Sprintf("failed to encode response: %v", err)
		return nil
	}
	resp.Payload = payload
	return nil
}

// ActionRPCClient is the RPC client that talks to ActionRPCServer
type ActionRPCClient struct {
	client *rpc.Client
}

// Run calls the plugin. net/rpc has no cancellation, so a cancelled ctx
// abandons the call rather than aborting it.
func (c *ActionRPCClient) Run(ctx context.Context, req *PluginRequest) (*PluginResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var resp RunResp
	call := c.client.Go("Plugin.Run", &RunArgs{Payload: payload}, &resp, make(chan *rpc.Call, 1))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-call.Done:
	}

	if call.Error != nil {
		return nil, call.Error
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("plugin: %s", resp.Error)
	}

	var out PluginResponse
	if err := json.Unmarshal(resp.Payload, &out); err != nil {
		return nil, fmt.Errorf("failed to decode plugin response: %w", err)
	}
	return &out, nil
}

// pluginProcess is one running plugin executable.
type pluginProcess struct {
	impl    ActionPlugin
	modTime time.Time
	exited  func() bool
	kill    func()
}

// pluginClients caches one process per executable and restarts it when the
// executable changes on disk or the process has exited.
type pluginClients struct {
	mu     sync.Mutex
	procs  map[string]*pluginProcess
	dial   func(command string, args []string) (*pluginProcess, error)
	logger zerolog.Logger
}

func newPluginClients(logger zerolog.Logger) *pluginClients {
	return &pluginClients{
		procs:  make(map[string]*pluginProcess),
		dial:   dialPlugin,
		logger: logger,
	}
}

func (p *pluginClients) get(command string, args []string) (ActionPlugin, error) {
	info, err := os.Stat(command)
	if err != nil {
		return nil, fmt.Errorf("plugin executable not found: %s", command)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if proc, ok := p.procs[command]; ok {
		if proc.modTime.Equal(info.ModTime()) && !proc.exited() {
			return proc.impl, nil
		}
		p.logger.Info().Str("command", command).Msg("Restarting plugin")
		proc.kill()
		delete(p.procs, command)
	}

	proc, err := p.dial(command, args)
	if err != nil {
		return nil, err
	}
	proc.modTime = info.ModTime()
	p.procs[command] = proc

	p.logger.Info().Str("command", command).Msg("Plugin started")

	return proc.impl, nil
}

// retain kills processes whose executable is no longer referenced.
func (p *pluginClients) retain(commands map[string]bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for command, proc := range p.procs {
		if !commands[command] {
			proc.kill()
			delete(p.procs, command)
		}
	}
}

func (p *pluginClients) closeAll() {
	p.retain(nil)
}

func dialPlugin(command string, args []string) (*pluginProcess, error) {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          PluginMap,
		Cmd:              exec.Command(command, args...),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to plugin: %w", err)
	}

	raw, err := rpcClient.Dispense(pluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}

	impl, ok := raw.(ActionPlugin)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("unexpected plugin type %T", raw)
	}

	return &pluginProcess{
		impl:   impl,
		exited: client.Exited,
		kill:   client.Kill,
	}, nil
}

// pluginAction runs by calling a plugin executable.
type pluginAction struct {
	name    string
	command string
	args    []string
	clients *pluginClients
}

func (a *pluginAction) Name() string {
	return a.name
}

func (a *pluginAction) Run(ctx context.Context, dispatcher *CollectingDispatcher, tracker Tracker, domain Domain) ([]Event, error) {
	impl, err := a.clients.get(a.command, a.args)
	if err != nil {
		return nil, err
	}

	resp, err := impl.Run(ctx, &PluginRequest{
		Action:  a.name,
		Tracker: tracker.Raw(),
		Domain:  domain,
	})
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", a.command, err)
	}

	if resp.Reject != "" {
		return nil, Reject(a.name, resp.Reject)
	}

	for _, msg := range resp.Responses {
		dispatcher.UtterMessage(msg)
	}
	return resp.Events, nil
}
