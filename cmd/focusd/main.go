package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"focusaura/internal/config"
	"focusaura/internal/domain"
	"focusaura/internal/engine"
	"focusaura/internal/mode"
	"focusaura/internal/server"
	"focusaura/internal/templates"
	"focusaura/internal/validate"
	focusaurasdk "focusaura/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "focusd",
	Short: "FocusAura intervention service",
	Long: `FocusAura turns a "user drifted off task" signal into one short intervention:
an action to take now, why it works, a reminder of the goal and a citation.
- Demo mode answers from a built-in template bank and never touches the network.
- Live mode queries the evidence, recency and synthesis providers concurrently and
  falls back to templates for any provider that fails or runs past the deadline.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FOCUSAURA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("mode", "", "override mode (demo or live)")
	rootCmd.PersistentFlags().String("credential", "", "provider credential (prefer FOCUSAURA_CREDENTIAL)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode"))
	_ = viper.BindPFlag("credential", rootCmd.PersistentFlags().Lookup("credential"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(composeCmd())
	rootCmd.AddCommand(templatesCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(configCmd())
}

// loadConfig reads the config file and applies flag and environment overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if m := viper.GetString("mode"); m != "" {
		cfg.Mode = config.Mode(m)
	}
	if cred := viper.GetString("credential"); cred != "" {
		cfg.Credential = cred
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if viper.GetBool("debug") {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			composer, err := engine.NewFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			handler, err := server.New(server.Config{Composer: composer, Config: cfg, Logger: logger})
			if err != nil {
				return err
			}
			for _, w := range cfg.Warnings() {
				logger.Warn(w)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving FocusAura API",
				zap.String("addr", "http://"+cfg.Server.Addr+cfg.Server.BasePath),
				zap.String("mode", cfg.ModeDescription()),
				zap.String("docs", cfg.Server.BasePath+"/docs"),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func composeCmd() *cobra.Command {
	var ev focusaurasdk.FocusEvent
	var remote string
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose one intervention",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if remote != "" {
				resp, err := focusaurasdk.New(remote).Intervention(ctx, ev)
				if err != nil {
					return err
				}
				return printIntervention(domain.InterventionResponse{
					ActionNow:    resp.ActionNow,
					WhyItWorks:   resp.WhyItWorks,
					GoalReminder: resp.GoalReminder,
					Citation:     resp.Citation,
				}, nil)
			}

			raw, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			event, err := validate.FocusEvent(raw)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := zap.NewNop()
			if viper.GetBool("debug") {
				if logger, err = newLogger(); err != nil {
					return err
				}
				defer logger.Sync()
			}
			composer, err := engine.NewFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			comp := composer.ComposeDetailed(ctx, event)
			return printIntervention(comp.Response, comp.Results)
		},
	}
	cmd.Flags().StringVar(&ev.Goal, "goal", "", "the task the user committed to")
	cmd.Flags().StringVar(&ev.Event, "event", "", "distraction signal, e.g. switched_to_video")
	cmd.Flags().StringVar(&ev.ContextTitle, "title", "", "title of the work document")
	cmd.Flags().StringVar(&ev.ContextApp, "app", "", "application of the work document")
	cmd.Flags().IntVar(&ev.TimeOnTaskMinutes, "minutes", 0, "minutes spent on task")
	cmd.Flags().StringVar(&ev.SessionID, "session", "", "session id")
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a running server; composes locally when empty")
	return cmd
}

func printIntervention(resp domain.InterventionResponse, results map[domain.ProviderRole]domain.ProviderResult) error {
	if viper.GetBool("json") {
		return printJSON(resp)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Field", "Value"})
	tw.AppendRow(table.Row{"action_now", resp.ActionNow})
	tw.AppendRow(table.Row{"why_it_works", resp.WhyItWorks})
	tw.AppendRow(table.Row{"goal_reminder", resp.GoalReminder})
	tw.AppendRow(table.Row{"citation", resp.Citation})
	tw.Render()
	if len(results) == 0 {
		return nil
	}
	pw := table.NewWriter()
	pw.SetOutputMirror(os.Stdout)
	pw.AppendHeader(table.Row{"Provider", "Origin", "Attempts", "Latency", "Cached", "Error"})
	for _, role := range domain.Roles() {
		r := results[role]
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		pw.AppendRow(table.Row{role, r.Origin, r.Attempts, r.Latency.Round(time.Millisecond), r.Cached, errText})
	}
	pw.Render()
	return nil
}

func templatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "Print the fallback template bank",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetBool("json") {
				bank := map[domain.Category]map[string]string{}
				for _, c := range domain.Categories() {
					row := map[string]string{"citation": templates.Citation(c)}
					for _, role := range domain.Roles() {
						row[string(role)] = templates.Template(role, c)
					}
					bank[c] = row
				}
				return printJSON(bank)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Category", "Role", "Template"})
			for _, c := range domain.Categories() {
				for _, role := range domain.Roles() {
					tw.AppendRow(table.Row{c, role, templates.Template(role, c)})
				}
				tw.AppendRow(table.Row{c, "citation", templates.Citation(c)})
				tw.AppendSeparator()
			}
			tw.Render()
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	var remote string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show mode, credential and provider routing",
		RunE: func(cmd *cobra.Command, args []string) error {
			var h focusaurasdk.Health
			if remote != "" {
				var err error
				if h, err = focusaurasdk.New(remote).Health(cmd.Context()); err != nil {
					return err
				}
			} else {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				h = localHealth(cfg)
			}
			if viper.GetBool("json") {
				return printJSON(h)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Key", "Value"})
			tw.AppendRow(table.Row{"mode", h.Mode})
			tw.AppendRow(table.Row{"description", h.ModeDescription})
			tw.AppendRow(table.Row{"credential_configured", h.CredentialConfigured})
			tw.AppendRow(table.Row{"ready_for_live_mode", h.ReadyForLiveMode})
			tw.AppendRow(table.Row{"cache_enabled", h.CacheEnabled})
			roles := make([]string, 0, len(h.Providers))
			for role := range h.Providers {
				roles = append(roles, role)
			}
			sort.Strings(roles)
			for _, role := range roles {
				tw.AppendRow(table.Row{"provider." + role, h.Providers[role]})
			}
			for _, w := range h.Warnings {
				tw.AppendRow(table.Row{"warning", w})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a running server; reports local config when empty")
	return cmd
}

func localHealth(cfg *config.Config) focusaurasdk.Health {
	providers := map[string]string{}
	for role, route := range mode.NewResolver(cfg).Routes() {
		providers[string(role)] = route
	}
	return focusaurasdk.Health{
		Status:               "ok",
		Mode:                 string(cfg.Mode),
		ModeDescription:      cfg.ModeDescription(),
		CredentialConfigured: cfg.HasCredential(),
		ReadyForLiveMode:     cfg.LiveReady(),
		CacheEnabled:         cfg.Cache.Enabled,
		Warnings:             cfg.Warnings(),
		Providers:            providers,
	}
}

func sessionsCmd() *cobra.Command {
	var remote string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions tracked by a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote == "" {
				return fmt.Errorf("--remote required")
			}
			items, err := focusaurasdk.New(remote).Sessions(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Session", "Distractions", "Interventions", "Last category", "Last activity"})
			for _, s := range items {
				tw.AppendRow(table.Row{s.SessionID, s.DistractionCount, s.InterventionCount, s.LastCategory, s.LastActivity})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a running server")
	return cmd
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration (credential redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := cfg.Redacted().ToYAML()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Println("config ok:", cfg.ModeDescription())
			for _, w := range cfg.Warnings() {
				fmt.Println("warning:", w)
			}
			return nil
		},
	})
	return cfgCmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
