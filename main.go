package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/bsaid97/go-geoprocessing/config"
	"github.com/bsaid97/go-geoprocessing/handlers"
	"github.com/bsaid97/go-geoprocessing/tools"
	"github.com/bsaid97/go-geoprocessing/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tj/go-spin"
	"gopkg.in/yaml.v2"
)

var version = "dev"

// errAborted makes the process exit non-zero after the report was printed.
var errAborted = errors.New("run aborted")

var cfg = config.New()

var options []struct {
	name, usage string
	defaultVal  interface{}
	flagsets    []*pflag.FlagSet
}

func init() {
	options = []struct {
		name, usage string
		defaultVal  interface{}
		flagsets    []*pflag.FlagSet
	}{
		{name: "config", usage: "configuration file location", defaultVal: "", flagsets: []*pflag.FlagSet{Root.PersistentFlags()}},
		{name: "workers", usage: "number of workers, 0 for one per CPU", defaultVal: 0, flagsets: []*pflag.FlagSet{Root.PersistentFlags()}},
		{name: "log.level", usage: "log level (debug, info, warn, error)", defaultVal: "info", flagsets: []*pflag.FlagSet{Root.PersistentFlags()}},
		{name: "log.format", usage: "log format (text or json)", defaultVal: "text", flagsets: []*pflag.FlagSet{Root.PersistentFlags()}},
		{name: "tool", usage: "tool to run: " + fmt.Sprint(config.ToolNames()), defaultVal: "", flagsets: []*pflag.FlagSet{runCmd.Flags()}},
		{name: "input", usage: "input layer (.geojson, .json or .shp)", defaultVal: "", flagsets: []*pflag.FlagSet{runCmd.Flags()}},
		{name: "overlay", usage: "overlay layer for two-layer tools", defaultVal: "", flagsets: []*pflag.FlagSet{runCmd.Flags()}},
		{name: "output", usage: "output layer (.geojson, .json or .shp)", defaultVal: "", flagsets: []*pflag.FlagSet{runCmd.Flags()}},
		{name: "report", usage: "write the error report to this YAML file instead of stdout", defaultVal: "", flagsets: []*pflag.FlagSet{runCmd.Flags()}},
		{name: "primary_keys", usage: "primary key fields of the input layers", defaultVal: []string{}, flagsets: []*pflag.FlagSet{runCmd.Flags()}},
		{name: "params.distance", usage: "buffer distance", defaultVal: 0.0, flagsets: []*pflag.FlagSet{runCmd.Flags()}},
		{name: "params.group_by", usage: "grouping for dissolve and convexhull (all, field, allfields, expression)", defaultVal: "all", flagsets: []*pflag.FlagSet{runCmd.Flags()}},
		{name: "params.group_field", usage: "field to group by", defaultVal: "", flagsets: []*pflag.FlagSet{runCmd.Flags()}},
		{name: "params.area_threshold", usage: "sliver area threshold for eliminate", defaultVal: 0.0, flagsets: []*pflag.FlagSet{runCmd.Flags()}},
		{name: "addr", usage: "listen address", defaultVal: ":8080", flagsets: []*pflag.FlagSet{serveCmd.Flags()}},
	}

	for _, option := range options {
		set := option.flagsets[0]
		switch v := option.defaultVal.(type) {
		case string:
			set.String(option.name, v, option.usage)
		case []string:
			set.StringSlice(option.name, v, option.usage)
		case int:
			set.Int(option.name, v, option.usage)
		case float64:
			set.Float64(option.name, v, option.usage)
		default:
			panic("invalid argument type")
		}
		cfg.BindPFlag(option.name, set.Lookup(option.name))
	}

	Root.AddCommand(versionCmd, runCmd, serveCmd)
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "geoprocess",
	Short: "Batch overlay operations on vector layers.",
	Long: `geoprocess applies buffer, intersection, union, difference, symmetric
difference, dissolve, convex hull and sliver elimination to vector layers.
Configuration can be given in a file (--config), as flags, or as environment
variables named GEOPROCESS_<key>, with dots in nested keys replaced by
underscores (GEOPROCESS_PARAMS_DISTANCE).`,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return config.ReadFile(cfg, cfg.GetString("config")) },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("geoprocess %s\n", version)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one tool over input layers",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfg)
		if err != nil {
			return err
		}
		log, err := c.Log.Logger()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return execute(ctx, c, log, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tools over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfg)
		if err != nil {
			return err
		}
		log, err := c.Log.Logger()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		srv := &http.Server{
			Addr:              cfg.GetString("addr"),
			Handler:           handlers.NewServer(log, c.Workers).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			srv.Shutdown(shutdown)
		}()

		log.WithField("addr", srv.Addr).Info("server is listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

// execute runs the configured tool and writes its report.
func execute(ctx context.Context, c config.Config, log *logrus.Logger, out, progress io.Writer) error {
	runLog := log.WithField("run", uuid.NewString())

	var layers config.Layers
	var err error
	if c.Input == "" {
		return errors.New("no input layer configured")
	}
	if layers.Input, err = utils.OpenLayer(c.Input, c.PrimaryKeys...); err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	if c.Overlay != "" {
		if layers.Overlay, err = utils.OpenLayer(c.Overlay, c.PrimaryKeys...); err != nil {
			return fmt.Errorf("opening overlay: %w", err)
		}
	}
	sink, err := utils.CreateSink(c.Output)
	if err != nil {
		return err
	}

	tool, err := config.Build(c.Tool, layers, c.Params, sink, tools.WithLogger(runLog), tools.WithWorkers(c.Workers))
	if err != nil {
		return err
	}
	runLog.WithFields(logrus.Fields{"tool": tool.Name(), "input": c.Input, "output": c.Output}).Info("starting run")

	runErr := runWithProgress(ctx, tool, progress)
	if err := writeReport(tool.Report(), c.Report, out); err != nil {
		return err
	}
	if runErr != nil {
		runLog.WithError(runErr).Error("run failed")
		return fmt.Errorf("%w: %w", errAborted, runErr)
	}
	return nil
}

// runWithProgress drives the tool phase by phase, drawing a spinner with the
// job count of the running phase.
func runWithProgress(ctx context.Context, tool *tools.Tool, w io.Writer) error {
	if err := watch(tool.Init(ctx), "preparing", w); err != nil {
		return errors.Join(err, tool.FinalizeOutput())
	}
	for phase := 0; phase < tool.Phases(); phase++ {
		label := fmt.Sprintf("phase %d/%d", phase+1, tool.Phases())
		if err := watch(tool.Execute(ctx, phase), label, w); err != nil {
			return errors.Join(err, tool.FinalizeOutput())
		}
	}
	return tool.FinalizeOutput()
}

func watch(h *tools.Handle, label string, w io.Writer) error {
	s := spin.New()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-h.Done():
			processed, total, _ := h.Progress()
			fmt.Fprintf(w, "\r%s: %d/%d jobs\n", label, processed, total)
			return h.Wait()
		case <-ticker.C:
			processed, total, pct := h.Progress()
			fmt.Fprintf(w, "\r%s %s: %d/%d jobs (%.0f%%)", s.Next(), label, processed, total, pct)
		}
	}
}

func writeReport(report tools.Report, path string, out io.Writer) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if path == "" {
		_, err = out.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func main() {
	if err := Root.Execute(); err != nil {
		os.Exit(1)
	}
}
