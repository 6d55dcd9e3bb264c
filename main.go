package main

import (
	"os"

	"github.com/mobiis/cargodispatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
