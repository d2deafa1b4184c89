package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"awakener/pkg/server"
	"awakener/pkg/service/mcp"
	"awakener/pkg/stealth"
	"awakener/pkg/tool"
	"awakener/pkg/tool/community"
	"awakener/pkg/tool/file"
	"awakener/pkg/tool/notebook"
	"awakener/pkg/tool/shell"
	"awakener/pkg/tool/skill"
	"awakener/pkg/usecase/activation"
	"awakener/pkg/usecase/snapshot"
	"awakener/pkg/utils/logging"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg          config
		addr         string
		interval     time.Duration
		maxToolCalls int64
		shellTimeout time.Duration
		recentNotes  int64
		maxOutput    int64
		personaPath  string
		skillsDir    string
		mcpConfig    string
		policyDir    string
		autostart    bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Control plane listen address",
			Value:       "127.0.0.1:8080",
			Sources:     cli.EnvVars("AWAKENER_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "interval",
			Usage:       "Sleep between rounds (0 for none)",
			Value:       5 * time.Minute,
			Sources:     cli.EnvVars("AWAKENER_INTERVAL"),
			Destination: &interval,
		},
		&cli.IntFlag{
			Name:        "max-tool-calls",
			Usage:       "Tool budget per round",
			Value:       20,
			Sources:     cli.EnvVars("AWAKENER_MAX_TOOL_CALLS"),
			Destination: &maxToolCalls,
		},
		&cli.DurationFlag{
			Name:        "shell-timeout",
			Usage:       "Per tool call execution timeout",
			Value:       120 * time.Second,
			Sources:     cli.EnvVars("AWAKENER_SHELL_TIMEOUT"),
			Destination: &shellTimeout,
		},
		&cli.IntFlag{
			Name:        "recent-notes",
			Usage:       "Notebook entries carried into the prompt",
			Value:       3,
			Sources:     cli.EnvVars("AWAKENER_RECENT_NOTES"),
			Destination: &recentNotes,
		},
		&cli.IntFlag{
			Name:        "max-output",
			Usage:       "Character cap per tool result",
			Value:       tool.DefaultMaxOutput,
			Sources:     cli.EnvVars("AWAKENER_MAX_OUTPUT"),
			Destination: &maxOutput,
		},
		&cli.StringFlag{
			Name:        "persona",
			Usage:       "Path to the persona prompt file",
			Sources:     cli.EnvVars("AWAKENER_PERSONA"),
			Destination: &personaPath,
		},
		&cli.StringFlag{
			Name:        "skills-dir",
			Usage:       "Skill catalog directory (skills disabled when empty)",
			Sources:     cli.EnvVars("AWAKENER_SKILLS_DIR"),
			Destination: &skillsDir,
		},
		&cli.StringFlag{
			Name:        "mcp-config",
			Usage:       "Path to the MCP servers config file",
			Sources:     cli.EnvVars("AWAKENER_MCP_CONFIG"),
			Destination: &mcpConfig,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies guarding shell commands",
			Sources:     cli.EnvVars("AWAKENER_POLICY_DIR"),
			Destination: &policyDir,
		},
		&cli.BoolFlag{
			Name:        "autostart",
			Usage:       "Start the activation loop on boot",
			Sources:     cli.EnvVars("AWAKENER_AUTOSTART"),
			Destination: &autostart,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, repositoryFlags(&cfg)...)

	nb := notebook.New()
	registry := tool.New(shell.New(), file.New(), nb, skill.New(), community.New())
	flags = append(flags, registry.Flags()...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the control plane and the activation loop",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.New(cfg.logLevel, os.Stderr)
			logging.SetDefault(logger)
			ctx = logging.With(ctx, logger)

			if personaPath == "" {
				personaPath = filepath.Join(cfg.dataDir, "persona.md")
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			storage, err := cfg.newStorage(ctx)
			if err != nil {
				return err
			}
			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}
			auditorGemini, err := cfg.newSnapshotGemini(ctx)
			if err != nil {
				return err
			}

			filter, err := newFilter(ctx, addr, policyDir)
			if err != nil {
				return err
			}

			if mcpConfig != "" {
				extension, err := mcp.LoadAndConnect(ctx, mcpConfig)
				if err != nil {
					return goerr.Wrap(err, "failed to set up MCP servers")
				}
				if extension != nil {
					registry.Add(extension)
				}
			}

			if err := registry.Init(ctx, &tool.Client{
				Repo:         repo,
				Storage:      storage,
				Filter:       filter,
				AgentHome:    cfg.agentHome,
				SkillsDir:    skillsDir,
				ShellTimeout: shellTimeout,
				MaxOutput:    int(maxOutput),
			}); err != nil {
				return err
			}

			hub := server.NewHub()
			runLog := logging.NewRunLog(filepath.Join(cfg.dataDir, "logs"))
			auditor := snapshot.New(auditorGemini, cfg.dataDir, snapshot.WithFallback(gemini))

			ctrl := activation.New(activation.Config{
				AgentHome:    cfg.agentHome,
				DataDir:      cfg.dataDir,
				PersonaPath:  personaPath,
				Interval:     interval,
				MaxToolCalls: int(maxToolCalls),
				ShellTimeout: shellTimeout,
				RecentNotes:  int(recentNotes),
			}, gemini, repo, registry, nb,
				activation.WithStorage(storage),
				activation.WithAuditor(auditor),
				activation.WithSink(hub),
				activation.WithRunLog(runLog),
			)

			srv := server.New(ctrl, repo, hub,
				server.WithStorage(storage),
				server.WithAuditor(auditor),
				server.WithRunLog(runLog),
				server.WithPersonaPath(personaPath),
				server.WithSkillsDir(skillsDir),
			)

			if autostart {
				if err := ctrl.Start(ctx); err != nil {
					return err
				}
			}

			httpServer := &http.Server{
				Addr:    addr,
				Handler: srv.Handler(),
				BaseContext: func(net.Listener) context.Context {
					return logging.With(context.Background(), logger)
				},
			}

			sigCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("control plane listening", "addr", addr)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case <-sigCtx.Done():
				logger.Info("shutting down")
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return goerr.Wrap(err, "server failed")
				}
			}

			ctrl.Stop()
			ctrl.Wait()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
}

// newFilter builds the stealth filter from the process's own footprint: the
// executable's directory, the PID, the listen port, and any host session
// visible in the environment.
func newFilter(ctx context.Context, addr, policyDir string) (*stealth.Filter, error) {
	installDir := ""
	if exe, err := os.Executable(); err == nil {
		installDir = filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil && installDir == "" {
		installDir = wd
	}

	port := 0
	if _, rawPort, err := net.SplitHostPort(addr); err == nil {
		if n, err := strconv.Atoi(rawPort); err == nil {
			port = n
		}
	}

	scfg := stealth.Config{
		InstallDir:    installDir,
		PID:           os.Getpid(),
		ServerPort:    port,
		ScreenSession: os.Getenv("STY"),
	}
	if os.Getenv("TMUX") != "" {
		scfg.TmuxSession = filepath.Base(os.Getenv("TMUX"))
	}
	if os.Getenv("INVOCATION_ID") != "" {
		scfg.SystemdService = "awakener.service"
	}

	var opts []stealth.Option
	if policyDir != "" {
		guard, err := stealth.LoadGuard(ctx, policyDir)
		if err != nil {
			return nil, err
		}
		if guard != nil {
			opts = append(opts, stealth.WithGuard(guard))
		}
	}

	return stealth.New(scfg, opts...), nil
}
