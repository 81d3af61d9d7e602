package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/govconnect/channel-gateway/core/config"
	"github.com/govconnect/channel-gateway/pkg/utils"
)

var rootCmd = &cobra.Command{
	Use:   "channel-gateway",
	Short: "Channel gateway between messaging providers and the AI orchestrator",
	Long: `channel-gateway mediates between external messaging channels (WhatsApp,
webchat) and the AI orchestrator. It owns session provisioning, inbound
ingestion with spam discipline, reply delivery and admin takeover.`,
}

func init() {
	utils.LoadConfig(".")
	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	initFlags()
	cobra.OnInitialize(initConfig)
}

func initFlags() {
	rootCmd.PersistentFlags().String("port", "", "HTTP port to listen on")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	_ = viper.BindPFlag("app_port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("app_debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.AutomaticEnv()
}

func initConfig() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("[CONFIG] Failed to load configuration: %v", err)
	}

	if port := viper.GetString("app_port"); port != "" {
		cfg.App.Port = port
	}
	if viper.GetBool("app_debug") {
		cfg.App.Debug = true
	}
	config.Global = cfg

	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
