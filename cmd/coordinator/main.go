package main

import (
	"os"

	"github.com/armadaproject/mesoscoordinator/cmd/coordinator/cmd"
	"github.com/armadaproject/mesoscoordinator/internal/common"
)

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
