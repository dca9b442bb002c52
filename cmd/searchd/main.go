// Command searchd serves the supplier discovery coordinator.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cyberx-ai/supplymesh/artifact"
	"github.com/cyberx-ai/supplymesh/config"
	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/httpapi"
	"github.com/cyberx-ai/supplymesh/logging"
	"github.com/cyberx-ai/supplymesh/model/provider"
	"github.com/cyberx-ai/supplymesh/quote"
	"github.com/cyberx-ai/supplymesh/runner"
	"github.com/cyberx-ai/supplymesh/search"
	"github.com/cyberx-ai/supplymesh/session"
	"github.com/cyberx-ai/supplymesh/spark"
)

const defaultPort = 10011

func main() {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:          "searchd",
		Short:        "供应商发现与采购协调服务",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, host, port)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides SUPPLYMESH_HOST)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides SUPPLYMESH_PORT)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, host string, port int) error {
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
		Component: "searchd",
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

	chain := search.NewChain(m, client,
		quote.NewFetcher(quote.WithFetchLogger(logger)),
		wallet, search.WithLogger(logger))

	sessions := session.NewInMemoryStore(func(o *session.Options) {
		o.TTL = cfg.SessionTTL
	})
	defer sessions.Close()

	r := runner.New(sessions, artifact.NewInMemoryStore(),
		runner.WithLogger(logger),
		// A run that recorded a payment but produced no terminal event ends
		// with the payment summary instead of the generic notice.
		runner.WithTerminalSynthesizer(func(sess *core.Session) string {
			if payment := sess.GetStateString(search.KeyPaymentResult); payment != "" {
				return payment
			}
			return runner.SynthesizedTerminalMessage
		}),
	)

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
				ID:          "supplier_discovery",
				Name:        "供应商发现与采购",
				Description: "搜索供应商智能体、验证凭证、收集报价、起草合同并执行支付。",
				Tags:        []string{"search", "procurement"},
				Examples:    []string{"采购 2000 个轮胎"},
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
