package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dockerbay/dockerbay/internal/shell/docker"
	"github.com/dockerbay/dockerbay/internal/shell/environment"
	"github.com/dockerbay/dockerbay/internal/shell/probe"
	"github.com/dockerbay/dockerbay/pkg/dockerbay"
)

// =============================================================================
// Application
// =============================================================================

// app holds what every command shares. The constructors are swapped out in
// tests.
type app struct {
	configPath string
	cfg        *Config
	logger     *slog.Logger

	newRuntime func(ctx context.Context, host string) (docker.Client, error)
	newRunID   func() string
	environ    func() []string
}

func newApp() *app {
	return &app{
		newRuntime: connectDocker,
		newRunID:   generateRunID,
		environ:    os.Environ,
	}
}

func connectDocker(ctx context.Context, host string) (docker.Client, error) {
	cli, err := docker.NewDockerClient(ctx, host)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, err
	}
	return cli, nil
}

func generateRunID() string {
	return "dockerbay-" + uuid.NewString()[:8]
}

// stackFlags are the flags of the commands that operate on a compose file.
type stackFlags struct {
	file    string
	envFile string
	runID   string
}

func (f *stackFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "compose file describing the services")
	cmd.Flags().StringVar(&f.envFile, "env-file", "", "variables for the compose file (default .env next to it)")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run id naming the network, containers and volumes")
	_ = cmd.MarkFlagRequired("file")
}

// =============================================================================
// Commands
// =============================================================================

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "dockerbay",
		Short:         "Ephemeral Docker environments for integration tests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(a.configPath)
			if err != nil {
				return &CommandError{Op: "load config", Err: err, ExitCode: ExitConfigError}
			}
			a.cfg = cfg
			a.logger = SetupLogger(cfg, cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config file")

	root.AddCommand(newUpCmd(a), newDownCmd(a), newRunCmd(a), newVersionCmd())
	return root
}

func newUpCmd(a *app) *cobra.Command {
	var flags stackFlags
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start every service of a compose file and leave them running",
		Long: "Start every service of a compose file and leave them running.\n" +
			"Prints the run id and the assigned host ports as KEY=VALUE lines.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			runID := flags.runID
			if runID == "" {
				runID = a.newRunID()
			}

			factory, rt, err := a.factory(ctx, flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			env, err := a.bringUp(ctx, factory, runID)
			if err != nil {
				return err
			}
			for _, kv := range portEnv(env) {
				fmt.Fprintln(cmd.OutOrStdout(), kv)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newDownCmd(a *app) *cobra.Command {
	var flags stackFlags
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Remove everything a run created",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			factory, rt, err := a.factory(ctx, flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			env, err := factory.MakeEnvironment(flags.runID)
			if err != nil {
				return &CommandError{Op: "down", Err: err, ExitCode: ExitTemplateError}
			}

			// Leftover containers may already have exited, so individual
			// failures are only warnings; the run counts as gone once its
			// network is.
			report := env.TryCleanupFromPreviousRun(ctx)
			a.logFailures(report)

			exists, err := env.Network().Exists(ctx)
			if err != nil {
				return &CommandError{Op: "down", Err: err, ExitCode: ExitDockerError}
			}
			if exists {
				err := fmt.Errorf("network %q still exists", env.Network().Name())
				if reportErr := report.Err(); reportErr != nil {
					err = fmt.Errorf("%w: %w", err, reportErr)
				}
				return &CommandError{Op: "down", Err: err, ExitCode: ExitEnvironmentError}
			}

			a.logger.Info("run removed", "run_id", env.RunID())
			return nil
		},
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("run-id")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var flags stackFlags
	cmd := &cobra.Command{
		Use:   "run -f FILE -- COMMAND [ARGS...]",
		Short: "Start the services, run a command against them, then remove them",
		Long: "Start the services, run a command against them, then remove them.\n" +
			"The command sees DOCKERBAY_RUN_ID and DOCKERBAY_<ALIAS>_PORT for every\n" +
			"service with an exposed port. Its exit code becomes dockerbay's.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runID := flags.runID
			if runID == "" {
				runID = a.newRunID()
			}

			factory, rt, err := a.factory(ctx, flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			env, err := a.bringUp(ctx, factory, runID)
			if err != nil {
				return err
			}

			child := exec.CommandContext(ctx, args[0], args[1:]...)
			child.Env = append(a.environ(), portEnv(env)...)
			child.Stdin = cmd.InOrStdin()
			child.Stdout = cmd.OutOrStdout()
			child.Stderr = cmd.ErrOrStderr()

			a.logger.Info("running command", "run_id", runID, "command", args[0])
			runErr := child.Run()

			if err := a.tearDown(ctx, env); err != nil {
				return &CommandError{Op: "tear down", Err: err, ExitCode: ExitEnvironmentError}
			}

			var exitErr *exec.ExitError
			switch {
			case runErr == nil:
				return nil
			case errors.As(runErr, &exitErr):
				code := exitErr.ExitCode()
				if code < 0 {
					code = 1
				}
				return &CommandError{Op: "run", ExitCode: code}
			default:
				return &CommandError{Op: "run", Err: runErr, ExitCode: ExitCommandNotRun}
			}
		},
	}
	flags.register(cmd)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dockerbay %s (built %s)\n", Version, BuildTime)
		},
	}
}

// =============================================================================
// Environment Helpers
// =============================================================================

// factory loads the compose file and connects to Docker. The caller closes
// the returned runtime.
func (a *app) factory(ctx context.Context, flags stackFlags) (*environment.Factory, docker.Client, error) {
	vars, err := a.interpolationEnv(flags.file, flags.envFile)
	if err != nil {
		return nil, nil, &CommandError{Op: "load templates", Err: err, ExitCode: ExitTemplateError}
	}
	templates, err := dockerbay.LoadTemplates(flags.file, vars)
	if err != nil {
		return nil, nil, &CommandError{Op: "load templates", Err: err, ExitCode: ExitTemplateError}
	}

	rt, err := a.newRuntime(ctx, a.cfg.Docker.Host)
	if err != nil {
		return nil, nil, &CommandError{Op: "connect to docker", Err: err, ExitCode: ExitDockerError}
	}

	factory := environment.NewFactory(rt,
		environment.WithTemplates(templates...),
		environment.WithLogger(a.logger),
		environment.WithPollInterval(a.cfg.Wait.PollInterval),
		environment.WithProber(probe.NewHTTPProber(a.cfg.Probe.Timeout)),
	)
	return factory, rt, nil
}

// bringUp initializes a run. A run that does not come up completely is torn
// down again before the error is returned.
func (a *app) bringUp(ctx context.Context, factory *environment.Factory, runID string) (*environment.Environment, error) {
	env, err := factory.MakeEnvironment(runID)
	if err != nil {
		return nil, &CommandError{Op: "up", Err: err, ExitCode: ExitTemplateError}
	}

	if a.cfg.Run.CleanupPrevious {
		a.logFailures(env.TryCleanupFromPreviousRun(ctx))
	}

	err = env.Initialize(ctx)
	if err == nil && !env.IsInitialized() {
		err = fmt.Errorf("run %q: not every service is running", runID)
	}
	if err != nil {
		if tdErr := a.tearDown(ctx, env); tdErr != nil {
			a.logger.Error("failed to clean up after failed start", "run_id", runID, "error", tdErr)
		}
		return nil, &CommandError{Op: "up", Err: err, ExitCode: ExitEnvironmentError}
	}

	a.logger.Info("run is up", "run_id", runID, "services", len(env.Services()))
	return env, nil
}

// tearDown outlives cancellation of ctx so an interrupted run still cleans
// up.
func (a *app) tearDown(ctx context.Context, env *environment.Environment) error {
	report, err := env.TearDown(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	a.logFailures(report)
	return report.Err()
}

func (a *app) logFailures(report *environment.TeardownReport) {
	if report.OK() {
		return
	}
	for _, f := range report.Failures {
		a.logger.Warn("teardown step failed",
			"kind", string(f.Kind), "name", f.Name, "op", f.Op, "error", f.Err)
	}
}

var nonEnvKeyChars = regexp.MustCompile(`[^A-Z0-9]+`)

// envKey turns an alias into an environment variable fragment, e.g.
// "order-db" becomes "ORDER_DB".
func envKey(alias string) string {
	return nonEnvKeyChars.ReplaceAllString(strings.ToUpper(alias), "_")
}

// portEnv lists the run id and every assigned host port as KEY=VALUE.
func portEnv(env *environment.Environment) []string {
	vars := []string{"DOCKERBAY_RUN_ID=" + env.RunID()}
	for _, svc := range env.Services() {
		prefix := "DOCKERBAY_" + envKey(svc.Alias())
		if port := svc.HostPort(); port != 0 {
			vars = append(vars, fmt.Sprintf("%s_PORT=%d", prefix, port))
		}
		if port := svc.DebugHostPort(); port != 0 {
			vars = append(vars, fmt.Sprintf("%s_DEBUG_PORT=%d", prefix, port))
		}
	}
	return vars
}

// interpolationEnv collects the variables ${VAR} references in the compose
// file resolve against. The process environment wins over the env file.
func (a *app) interpolationEnv(file, envFile string) (map[string]string, error) {
	vars := map[string]string{}
	if envFile == "" {
		candidate := filepath.Join(filepath.Dir(file), ".env")
		if _, err := os.Stat(candidate); err == nil {
			envFile = candidate
		}
	}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("read env file: %w", err)
		}
		maps.Copy(vars, values)
	}
	maps.Copy(vars, environMap(a.environ()))
	return vars, nil
}

func environMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}
