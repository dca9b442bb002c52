// Command supplierd serves one parameterized supplier quoting agent.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cyberx-ai/supplymesh/artifact"
	"github.com/cyberx-ai/supplymesh/config"
	"github.com/cyberx-ai/supplymesh/httpapi"
	"github.com/cyberx-ai/supplymesh/logging"
	"github.com/cyberx-ai/supplymesh/runner"
	"github.com/cyberx-ai/supplymesh/session"
	"github.com/cyberx-ai/supplymesh/supplier"
)

const defaultPort = 10021

type flags struct {
	host       string
	port       int
	name       string
	commodity  string
	inventory  int64
	perVehicle int64
	unitPrice  float64
	wallet     string
}

func main() {
	var f flags

	cmd := &cobra.Command{
		Use:          "supplierd",
		Short:        "参数化供应商报价服务",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.host, "host", "", "listen host (overrides SUPPLYMESH_HOST)")
	cmd.Flags().IntVar(&f.port, "port", 0, "listen port (overrides SUPPLYMESH_PORT)")
	cmd.Flags().StringVar(&f.name, "name", "轮胎供应商A", "supplier display name")
	cmd.Flags().StringVar(&f.commodity, "commodity", "轮胎", "commodity label")
	cmd.Flags().Int64Var(&f.inventory, "inventory", 10000, "available stock")
	cmd.Flags().Int64Var(&f.perVehicle, "per-vehicle", 4, "units needed per vehicle")
	cmd.Flags().Float64Var(&f.unitPrice, "unit-price", 0, "flat unit price replacing the tier table")
	cmd.Flags().StringVar(&f.wallet, "wallet", "", "supplier wallet address")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, f flags) error {
	_ = godotenv.Load()

	cfg, err := config.Load(defaultPort)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = f.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = f.port
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return err
	}

	logger := logging.New(&logging.Config{
		Level:     logging.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: "supplierd",
	})

	tiers := supplier.StandardTireTiers
	if f.unitPrice > 0 {
		tiers = []supplier.PriceTier{{UpTo: 0, UnitPrice: f.unitPrice}}
	}
	profile := supplier.Profile{
		ID:            f.name,
		Name:          f.name,
		Commodity:     f.commodity,
		PerVehicle:    f.perVehicle,
		Inventory:     f.inventory,
		Tiers:         tiers,
		Currency:      "元",
		WalletAddress: f.wallet,
	}
	step := supplier.NewQuoteStep(profile, logger)

	sessions := session.NewInMemoryStore(func(o *session.Options) {
		o.TTL = cfg.SessionTTL
	})
	defer sessions.Close()

	r := runner.New(sessions, artifact.NewInMemoryStore(), runner.WithLogger(logger))

	baseURL := fmt.Sprintf("http://%s:%d/", cfg.Host, cfg.Port)
	srv, err := httpapi.NewServer(httpapi.Config{
		Card: httpapi.AgentCard{
			Name:               profile.Name,
			Description:        step.Description(),
			URL:                baseURL,
			Version:            "1.0.0",
			DefaultInputModes:  httpapi.DefaultModes,
			DefaultOutputModes: httpapi.DefaultModes,
			Capabilities:       httpapi.Capabilities{Streaming: true},
			Skills: []httpapi.Skill{{
				ID:          "quote",
				Name:        profile.Commodity + "报价",
				Description: fmt.Sprintf("根据需求数量对%s给出分级报价。", profile.Commodity),
				Tags:        []string{"supplier", "quote"},
				Examples:    []string{"需要 2000 个" + profile.Commodity},
			}},
		},
		Chain:             step,
		ProcessingMessage: profile.Name + "正在计算报价...",
		Runner:            r,
		MessagePath:       "/",
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	return srv.Start(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
}
