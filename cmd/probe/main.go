// Command probe issues one orchestrated request and prints the result with
// breaker and health snapshots. With -remote it asks a running service over
// gRPC instead of building the services in-process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"resilient-feed/src/config"
	"resilient-feed/src/grpc_control"
	"resilient-feed/src/logger"
	"resilient-feed/src/serializers"
	"resilient-feed/src/shield"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	remote := flag.String("remote", "", "address of a running service's gRPC port, e.g. 127.0.0.1:9090")
	provider := flag.String("provider", "market-prices", "provider name")
	endpoint := flag.String("endpoint", "/", "endpoint path")
	noCache := flag.Bool("nocache", false, "skip the cache read")
	timeout := flag.Duration("timeout", 60*time.Second, "overall timeout")

	params := map[string]string{}
	flag.Func("param", "request parameter key=value (repeatable)", func(value string) error {
		key, val, ok := strings.Cut(value, "=")
		if !ok || key == "" {
			return fmt.Errorf("expected key=value, got %q", value)
		}
		params[key] = val
		return nil
	})
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		output any
		err    error
	)
	if *remote != "" {
		output, err = runRemote(ctx, *remote, &grpc_control.DataRequest{
			Provider: *provider, Endpoint: *endpoint, Params: params, NoCache: *noCache,
		})
	} else {
		output, err = runLocal(ctx, *configPath, *provider, *endpoint, params, !*noCache)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	data, err := serializers.NewIndentedJSONSerializer().Marshal(output)
	if err != nil {
		fmt.Printf("Error encoding output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

// -----------------------------------------------------------------------------

// runLocal builds the services without any server or push session.
func runLocal(ctx context.Context, configPath, provider, endpoint string, params map[string]string, useCache bool) (any, error) {
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.StatusAPI.Enabled = false
	cfg.GRPC.Enabled = false
	cfg.NATS.Enabled = false
	cfg.Realtime.Enabled = false
	cfg.LogLevel = "warning"

	if cfg.GetServiceByName(provider) == nil {
		names := make([]string, 0, len(cfg.Services))
		for _, service := range cfg.Services {
			names = append(names, service.Name)
		}
		return nil, fmt.Errorf("unknown provider %q, configured: %s", provider, strings.Join(names, ", "))
	}

	app, err := shield.New(cfg, logger.NewLogger(cfg, "probe"))
	if err != nil {
		return nil, err
	}

	result := app.Request(ctx, provider, endpoint, params, useCache)
	report := app.Monitor.CheckNow(ctx)

	return map[string]any{
		"result":   result,
		"degraded": result.Degraded(),
		"breakers": app.Breakers.Snapshot(),
		"health":   report,
		"cache":    app.Cache.Stats(),
	}, nil
}

// -----------------------------------------------------------------------------

func runRemote(ctx context.Context, address string, req *grpc_control.DataRequest) (any, error) {
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client: %w", err)
	}
	defer conn.Close()

	client := grpc_control.NewControlClient(conn)

	result, err := client.Request(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	status, err := client.GetStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("status failed: %w", err)
	}

	return map[string]any{
		"result":   result,
		"degraded": result.Degraded(),
		"breakers": status.Breakers,
		"health":   status.Health,
		"overall":  status.Overall,
	}, nil
}
