package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-viewrender/internal/logging"
	"github.com/goliatone/go-viewrender/pkg/config"
	"github.com/goliatone/go-viewrender/pkg/render"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("viewrender", flag.ContinueOnError)
	configPath := flags.String("config", "viewrender.yaml", "configuration file")
	kind := flags.String("type", "view", "namespace of the view to render")
	view := flags.String("view", "", "view name within the namespace")
	dataPath := flags.String("data", "", "JSON or YAML file with the render context")
	output := flags.String("output", "", "output file (stdout if empty)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*view) == "" {
		return fmt.Errorf("viewrender: -view is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	data, err := readData(*dataPath)
	if err != nil {
		return err
	}

	adapter, err := render.New(cfg.Host(), render.WithLogger(logger)).Init(cfg.Settings())
	if err != nil {
		return fmt.Errorf("viewrender: init: %w", err)
	}

	out, err := adapter.Render(*kind, *view, data)
	if err != nil {
		return fmt.Errorf("viewrender: render %s/%s: %w", *kind, *view, err)
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(out), 0o644); err != nil {
			return fmt.Errorf("viewrender: write output: %w", err)
		}
		logger.Info("view written", zap.String("path", *output))
		return nil
	}
	_, err = io.WriteString(stdout, out)
	return err
}

func readData(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return map[string]any{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("viewrender: read data: %w", err)
	}

	data := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &data)
	default:
		err = json.Unmarshal(raw, &data)
	}
	if err != nil {
		return nil, fmt.Errorf("viewrender: decode data %s: %w", path, err)
	}
	return data, nil
}
