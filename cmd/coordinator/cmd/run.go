package cmd

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/armadaproject/mesoscoordinator/internal/common"
	"github.com/armadaproject/mesoscoordinator/internal/coordinator"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the configured clusters and coordinate them until interrupted",
		RunE:  runCoordinator,
	}
	return cmd
}

func runCoordinator(_ *cobra.Command, _ []string) error {
	config, v, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := coordinator.StartUp(config)
	if err != nil {
		return err
	}
	// Cluster configuration is only read at start up; a change re-registers locations with the naming registry.
	common.WatchConfig(v, c.Reloaded)

	shutdownChannel := make(chan os.Signal, 1)
	signal.Notify(shutdownChannel, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-shutdownChannel
		log.Infof("Received %s, shutting down", sig)
		c.Shutdown()
	}()
	defer handleGracefulShutdownDuringPanic(c)

	c.Wait()
	return nil
}

func handleGracefulShutdownDuringPanic(c *coordinator.Coordinator) {
	if err := recover(); err != nil {
		c.Shutdown()
		panic(err)
	}
}
