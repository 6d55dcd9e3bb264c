package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mobiis/cargodispatch/app"
	"github.com/mobiis/cargodispatch/config"
	"github.com/mobiis/cargodispatch/core/model"
	"github.com/mobiis/cargodispatch/infra/logger"
)

var (
	loadFile  string
	fleetFile string
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch a single load request from a JSON file",
	RunE:  dispatchLoad,
}

func init() {
	dispatchCmd.Flags().StringVarP(&loadFile, "file", "f", "", "load request JSON file")
	dispatchCmd.Flags().StringVar(&fleetFile, "fleet", "", "fleet assets JSON file seeding the index")
	_ = dispatchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(dispatchCmd)
}

func dispatchLoad(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if fleetFile != "" {
		cfg.Fleet.SeedFile = fleetFile
	}

	data, err := os.ReadFile(loadFile)
	if err != nil {
		return fmt.Errorf("read load file: %w", err)
	}
	var req model.LoadRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parse load request: %w", err)
	}

	logg := logger.New("dispatch-command")
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logg.Errorf("service close: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	decision, err := svc.Pipeline.Dispatch(ctx, req)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(decision, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
