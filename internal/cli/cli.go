package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	commands "github.com/urfave/cli/v3"

	"github.com/st3v3nmw/mirrorcheck/internal/attest"
	"github.com/st3v3nmw/mirrorcheck/internal/config"
	"github.com/st3v3nmw/mirrorcheck/internal/docker"
	"github.com/st3v3nmw/mirrorcheck/internal/logger"
	"github.com/st3v3nmw/mirrorcheck/internal/proxyconf"
	"github.com/st3v3nmw/mirrorcheck/internal/registry"
	"github.com/st3v3nmw/mirrorcheck/internal/scenario"
	_ "github.com/st3v3nmw/mirrorcheck/scenarios"
)

const exampleScenarios = "scenarios.yaml"

func InitProject(ctx context.Context, cmd *commands.Command) error {
	out := cmd.Root().Writer

	targetPath := "."
	if cmd.NArg() > 0 {
		targetPath = cmd.Args().First()
	}

	// Create directory if specified
	if targetPath != "." {
		if err := os.MkdirAll(targetPath, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", targetPath, err)
		}
	}

	configPath := filepath.Join(targetPath, config.ConfigPath)
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	// Seed a scenario file from a built-in set
	set, err := registry.Get("handle-get")
	if err != nil {
		return err
	}

	data, err := scenario.Marshal(set.Scenarios[:1])
	if err != nil {
		return err
	}

	scenariosPath := filepath.Join(targetPath, exampleScenarios)
	if err := os.WriteFile(scenariosPath, data, 0644); err != nil {
		return fmt.Errorf("failed to create %s: %w", exampleScenarios, err)
	}

	cfg := config.Default()
	cfg.Files = []string{exampleScenarios}
	if err := config.SaveTo(cfg, configPath); err != nil {
		return fmt.Errorf("failed to create %s: %w", config.ConfigPath, err)
	}

	if targetPath == "." {
		fmt.Fprintln(out, "Created mirrorcheck project in current directory.")
	} else {
		fmt.Fprintf(out, "Created mirrorcheck project in directory: %s\n", targetPath)
	}

	fmt.Fprintf(out, "  %-17s - Images, ports, timeouts and default proxy options\n", config.ConfigPath)
	fmt.Fprintf(out, "  %-17s - An example scenario to start from\n", exampleScenarios)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Point build.proxy at the proxy's source, then run 'mirrorcheck run'.")

	return nil
}

func RunScenarios(ctx context.Context, cmd *commands.Command) error {
	verbose := cmd.Bool("verbose")
	logger.Setup(verbose)

	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	if id := cmd.String("run-id"); id != "" {
		cfg.RunID = id
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()[:8]
	}

	scenarios, err := selectScenarios(cfg, cmd.StringSlice("set"), cmd.StringSlice("file"))
	if err != nil {
		return err
	}

	harness, err := cfg.Attest()
	if err != nil {
		return err
	}

	out := cmd.Root().Writer
	if verbose {
		harness.ContainerLogs = logger.ContainerSink(out)
	}

	cli, err := docker.New(cmd.String("docker-host"))
	if err != nil {
		return err
	}
	defer cli.Close()

	slog.Info("Starting run", "run", cfg.RunID, "scenarios", len(scenarios))

	passed := attest.New().
		WithConfig(harness).
		WithBackend(attest.Containers(cli)).
		Output(out).
		Setup(func(ctx context.Context) error {
			return attest.PrepareImages(ctx, cli, harness, progressWriter(verbose, out))
		}).
		Test(scenarios...).
		Run(ctx)

	if !passed {
		return commands.Exit("", 1)
	}

	return nil
}

func ListScenarios(ctx context.Context, cmd *commands.Command) error {
	out := cmd.Root().Writer

	fmt.Fprintln(out, "Available scenario sets:")
	fmt.Fprintln(out)

	for _, key := range registry.Keys() {
		set, err := registry.Get(key)
		if err != nil {
			continue
		}

		fmt.Fprintf(out, "  %-14s - %s (%d scenarios)\n", key, set.Name, set.Len())
		if cmd.Bool("verbose") {
			for i := range set.Scenarios {
				sc := &set.Scenarios[i]
				fmt.Fprintf(out, "      %-18s %s\n", sc.ID, sc.Title())
			}
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Run with: mirrorcheck run --set <set>")

	return nil
}

func ValidateFiles(ctx context.Context, cmd *commands.Command) error {
	out := cmd.Root().Writer

	files := cmd.Args().Slice()
	if len(files) == 0 {
		return fmt.Errorf("at least one scenario file is required\nUsage: mirrorcheck validate <file>...")
	}

	checkMark := color.New(color.FgGreen).Sprint("✓")
	crossMark := color.New(color.FgRed).Sprint("✗")

	failed := 0
	for _, file := range files {
		scenarios, err := scenario.Load(file)
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s %s\n  %s\n", crossMark, file, strings.ReplaceAll(err.Error(), "\n", "\n  "))
			continue
		}

		fmt.Fprintf(out, "%s %s (%d scenarios)\n", checkMark, file, len(scenarios))
	}

	if failed > 0 {
		return commands.Exit(fmt.Sprintf("%d of %d files invalid", failed, len(files)), 1)
	}

	return nil
}

func RenderConfig(ctx context.Context, cmd *commands.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("exactly one scenario id is required\nUsage: mirrorcheck render <scenario-id>")
	}

	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	sc, err := findScenario(cmd.Args().First(), cmd.StringSlice("file"))
	if err != nil {
		return err
	}

	harness, err := cfg.Attest()
	if err != nil {
		return err
	}

	doc, err := proxyconf.Render(harness.ConfigDefaults, sc.Test.GivenConfig, cmd.String("src"), cmd.String("dst"))
	if err != nil {
		return err
	}

	data, err := doc.Encode()
	if err != nil {
		return err
	}

	_, err = cmd.Root().Writer.Write(data)
	return err
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, config.ErrNotFound) {
		slog.Debug("No config file, using defaults", "path", path)
		cfg = config.Default()
		cfg.Build = config.Build{}
		return cfg, nil
	}

	return cfg, err
}

// selectScenarios resolves the scenarios of a run. Flags take precedence
// over the config file; with neither, every built-in set runs.
func selectScenarios(cfg *config.Config, sets, files []string) ([]scenario.Scenario, error) {
	if len(sets) == 0 && len(files) == 0 {
		sets, files = cfg.Sets, cfg.Files
	}

	if len(sets) == 0 && len(files) == 0 {
		return registry.All(), nil
	}

	var selected []scenario.Scenario
	for _, key := range sets {
		set, err := registry.Get(key)
		if err != nil {
			return nil, fmt.Errorf("%w\nAvailable sets: %s", err, strings.Join(registry.Keys(), ", "))
		}
		selected = append(selected, set.Scenarios...)
	}

	for _, file := range files {
		scenarios, err := scenario.Load(file)
		if err != nil {
			return nil, err
		}
		selected = append(selected, scenarios...)
	}

	if err := scenario.ValidateAll(selected); err != nil {
		return nil, err
	}

	return selected, nil
}

func findScenario(id string, files []string) (*scenario.Scenario, error) {
	for _, file := range files {
		scenarios, err := scenario.Load(file)
		if err != nil {
			return nil, err
		}

		for i := range scenarios {
			if scenarios[i].ID == id {
				return &scenarios[i], nil
			}
		}
	}

	return registry.Find(id)
}

func progressWriter(verbose bool, out io.Writer) io.Writer {
	if verbose {
		return out
	}

	return io.Discard
}
