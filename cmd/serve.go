package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/runsheet/app"
	"github.com/kilianp07/runsheet/core/model"
	"github.com/kilianp07/runsheet/infra/logger"
)

var serveInput string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the planning service (default)",
	RunE:  runServe,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().StringVarP(&serveInput, "input", "i", "", "snapshot JSON imported at startup")
	}
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	log := logger.New("main")
	defer func() {
		if err := svc.Close(); err != nil {
			log.Errorf("service close: %v", err)
		}
	}()

	if serveInput != "" {
		doc, err := readDocument(serveInput)
		if err != nil {
			return err
		}
		go func() {
			if err := svc.Import(ctx, doc); err != nil {
				log.Errorf("import %s: %v", serveInput, err)
				return
			}
			log.Infof("imported %s", serveInput)
		}()
	}
	return svc.Run(ctx)
}

// readDocument decodes a snapshot file; "-" reads standard input.
func readDocument(path string) (model.Document, error) {
	var doc model.Document
	f := os.Stdin
	if path != "-" {
		var err error
		f, err = os.Open(path)
		if err != nil {
			return doc, err
		}
		defer func() { _ = f.Close() }()
	}
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return doc, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}
