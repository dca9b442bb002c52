// Command factoryd serves the factory supply-chain coordinator.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cyberx-ai/supplymesh/artifact"
	"github.com/cyberx-ai/supplymesh/config"
	"github.com/cyberx-ai/supplymesh/factory"
	"github.com/cyberx-ai/supplymesh/httpapi"
	"github.com/cyberx-ai/supplymesh/logging"
	"github.com/cyberx-ai/supplymesh/model/provider"
	"github.com/cyberx-ai/supplymesh/runner"
	"github.com/cyberx-ai/supplymesh/session"
	"github.com/cyberx-ai/supplymesh/spark"
)

const defaultPort = 10005

func main() {
	var host string
	var port int
	var parallel bool

	cmd := &cobra.Command{
		Use:          "factoryd",
		Short:        "汽车工厂供应链协调服务",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, host, port, parallel)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides SUPPLYMESH_HOST)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides SUPPLYMESH_PORT)")
	cmd.Flags().BoolVar(&parallel, "parallel-commodities", false, "run the commodity sub-chains concurrently")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, host string, port int, parallel bool) error {
	_ = godotenv.Load()

	cfg, err := config.Load(defaultPort)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = host
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = port
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return err
	}

	logger := logging.New(&logging.Config{
		Level:     logging.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: "factoryd",
	})

	m, err := provider.New(cfg.Provider, cfg.ModelName, cfg.OpenAIAPIKey, cfg.AnthropicAPIKey)
	if err != nil {
		return err
	}

	client := spark.NewClient(cfg.ChainBaseURL, cfg.RegistryBaseURL, spark.WithLogger(logger))
	wallet := spark.Wallet{
		SenderAddress: cfg.SenderAddress,
		PrivateKey:    cfg.SenderPrivateKey,
		DestAddress:   cfg.DestAddress,
		Amount:        cfg.TransferAmount,
		GasPrice:      cfg.GasPrice,
		FeeLimit:      cfg.FeeLimit,
	}

	chainOpts := []factory.Option{factory.WithLogger(logger)}
	if parallel {
		chainOpts = append(chainOpts, factory.WithParallelCommodities())
	}
	chain := factory.NewChain(m, client, wallet, chainOpts...)

	sessions := session.NewInMemoryStore(func(o *session.Options) {
		o.TTL = cfg.SessionTTL
	})
	defer sessions.Close()

	r := runner.New(sessions, artifact.NewInMemoryStore(), runner.WithLogger(logger))

	agents := make([]httpapi.AgentSummary, 0)
	for _, entry := range chain.Manifest() {
		agents = append(agents, httpapi.AgentSummary{Name: entry.Name, Description: entry.Description})
	}

	baseURL := fmt.Sprintf("http://%s:%d/", cfg.Host, cfg.Port)
	srv, err := httpapi.NewServer(httpapi.Config{
		Card: httpapi.AgentCard{
			Name:               chain.Name(),
			Description:        chain.Description(),
			URL:                baseURL,
			Version:            "1.0.0",
			DefaultInputModes:  httpapi.DefaultModes,
			DefaultOutputModes: httpapi.DefaultModes,
			Capabilities:       httpapi.Capabilities{Streaming: true},
			Skills: []httpapi.Skill{{
				ID:          "factory_simulation",
				Name:        "工厂供应链模拟",
				Description: "根据生产目标模拟组件采购、运输与交易结算。",
				Tags:        []string{"factory", "supply-chain"},
				Examples:    []string{"生产500辆汽车"},
			}},
		},
		Chain:             chain,
		ProcessingMessage: chain.ProcessingMessage(),
		Runner:            r,
		MessagePath:       "/AgentApi/getmessages/",
		Agents:            agents,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	return srv.Start(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
}
