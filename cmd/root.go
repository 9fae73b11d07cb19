package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Laisky/disaster-alert/library/config"
	"github.com/Laisky/disaster-alert/library/log"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	gutils "github.com/Laisky/go-utils/v6"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"
)

var rootCMD = &cobra.Command{
	Use:   "disaster-alert",
	Short: "disaster-alert",
	Long:  `crowd-sourced disaster alert API`,
	Args:  gcmd.NoExtraArgs,
}

func initialize(ctx context.Context, cmd *cobra.Command) error {
	if err := gconfig.Shared.BindPFlags(cmd.Flags()); err != nil {
		return errors.Wrap(err, "bind pflags")
	}

	if err := setupSettings(ctx); err != nil {
		return errors.Wrap(err, "setup settings")
	}
	setupLogger(ctx)

	return nil
}

func setupSettings(_ context.Context) error {
	// mode
	if gconfig.Shared.GetBool("debug") {
		fmt.Println("run in debug mode")
		gconfig.Shared.Set("log-level", "debug")
	} else { // prod mode
		fmt.Println("run in prod mode")
	}

	// clock
	gutils.SetInternalClock(100 * time.Millisecond)

	// load configuration
	config.LoadFromFile(gconfig.Shared.GetString("config"))
	if err := config.LoadEnv(gconfig.Shared.GetString("env-file")); err != nil {
		return errors.Wrap(err, "load env")
	}

	return nil
}

func setupLogger(_ context.Context) {
	lvl := gconfig.Shared.GetString("log-level")
	if err := log.Logger.ChangeLevel(glog.Level(lvl)); err != nil {
		log.Logger.Panic("change log level", zap.Error(err), zap.String("level", lvl))
	}
}

func init() {
	rootCMD.PersistentFlags().Bool("debug", false, "run in debug mode")
	rootCMD.PersistentFlags().String("listen", "localhost:8080", "like `localhost:8080`")
	rootCMD.PersistentFlags().StringP("config", "c", "/etc/disaster-alert/settings.yml", "config file path")
	rootCMD.PersistentFlags().String("env-file", ".env", "optional dotenv file holding secrets")
	rootCMD.PersistentFlags().String("log-level", "info", "`debug/info/error`")
}

// Execute execute root command
func Execute() {
	if err := rootCMD.Execute(); err != nil {
		glog.Shared.Panic("start", zap.Error(err))
	}
}
