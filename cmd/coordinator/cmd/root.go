package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/armadaproject/mesoscoordinator/internal/common"
	commonconfig "github.com/armadaproject/mesoscoordinator/internal/common/config"
	"github.com/armadaproject/mesoscoordinator/internal/coordinator/configuration"
)

const (
	CustomConfigLocation string = "config"
	defaultConfigPath    string = "./config/coordinator"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "coordinator",
		SilenceUsage: true,
		Short:        "Coordinates the lifecycle of Mesos clusters and the frameworks they run",
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	if err := viper.BindPFlag(CustomConfigLocation, cmd.PersistentFlags().Lookup(CustomConfigLocation)); err != nil {
		panic(err)
	}

	cmd.AddCommand(runCmd())
	return cmd
}

func loadConfig() (configuration.CoordinatorConfiguration, *viper.Viper, error) {
	var config configuration.CoordinatorConfiguration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	v := common.LoadConfig(&config, defaultConfigPath, userSpecifiedConfigs)

	err := config.Validate()
	if err != nil {
		commonconfig.LogValidationErrors(err)
	}
	return config, v, err
}
