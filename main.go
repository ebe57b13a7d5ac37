package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	cfg "github.com/maastricht-university/empath-pipeline/config"
	"github.com/maastricht-university/empath-pipeline/emotion"
	"github.com/maastricht-university/empath-pipeline/logging"
	"github.com/maastricht-university/empath-pipeline/metrics"
	"github.com/maastricht-university/empath-pipeline/orchestrator"
	"github.com/maastricht-university/empath-pipeline/responder"
	"github.com/maastricht-university/empath-pipeline/server"
)

var (
	version = "dev"

	configFile string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:           "empath",
		Short:         "Multimodal emotion-aware conversational pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config.yaml (default: guessed from CONFIG_ENV)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")

	root.AddCommand(serveCmd(), analyzeCmd(), techniquesCmd(), providersCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and the logger shared by every command.
func setup() (*cfg.Root, *logrus.Logger, error) {
	conf, err := cfg.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		conf.Log.Level = logLevel
	}
	log, err := logging.New(conf.Log.Level, conf.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	if conf.File != "" {
		log.WithField("file", conf.File).Debug("config loaded")
	}
	for _, n := range conf.Notes {
		log.Warn(n)
	}
	return conf, log, nil
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, log, err := setup()
			if err != nil {
				return err
			}
			if addr != "" {
				conf.Server.Addr = addr
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			p, err := orchestrator.NewPipeline(conf, log, m)
			if err != nil {
				return err
			}
			for _, g := range p.Generator().Providers() {
				log.WithFields(logrus.Fields{"provider": g.ID(), "model": g.Model()}).Info("llm provider configured")
			}

			srv := server.NewServer(p, conf, log, m, reg)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go srv.SweepSessions(ctx, conf.Session.IdleTTL, time.Minute)

			errc := make(chan error, 1)
			go func() { errc <- srv.Start(conf.Server.Addr) }()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			log.Info("shutting down")
			shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdown)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides SERVER_ADDR)")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var (
		text, audio, image, sid, outDir string
		save                            bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one turn from local files and print the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, log, err := setup()
			if err != nil {
				return err
			}
			p, err := orchestrator.NewPipeline(conf, log, nil)
			if err != nil {
				return err
			}

			in := orchestrator.Input{SessionID: sid, Text: text, TextSet: cmd.Flags().Changed("text")}
			if in.Audio, err = readMedia(audio); err != nil {
				return err
			}
			if in.Image, err = readMedia(image); err != nil {
				return err
			}

			res, err := p.Turn(cmd.Context(), in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dominant:   %s (confidence %.2f)\n", res.Fused.Dominant, res.Fused.Confidence)
			fmt.Fprintf(out, "modalities: %v\n", res.Fused.Modalities)
			for m, why := range res.Skipped {
				fmt.Fprintf(out, "skipped:    %s (%s)\n", m, why)
			}
			if res.Transcript != "" {
				fmt.Fprintf(out, "transcript: %s\n", res.Transcript)
			}
			source := "template"
			if !res.Reply.Fallback {
				source = res.Reply.Provider + "/" + res.Reply.Model
			}
			fmt.Fprintf(out, "reply (%s):\n%s\n", source, res.Reply.Text)

			if save || outDir != "" {
				if outDir == "" {
					outDir = conf.Paths.Outputs
				}
				c, _ := p.Sessions().Get(res.SessionID)
				path, err := orchestrator.Persist(outDir, res, c.History())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "saved:      %s\n", path)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&text, "text", "", "user text")
	f.StringVar(&audio, "audio", "", "path to a WAV recording")
	f.StringVar(&image, "image", "", "path to a PNG/JPEG/GIF frame")
	f.StringVar(&sid, "session", "", "session id")
	f.BoolVar(&save, "save", false, "write the result under OUTPUTS_DIR")
	f.StringVar(&outDir, "out", "", "write the result under this directory")
	return cmd
}

func readMedia(path string) (*orchestrator.Media, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &orchestrator.Media{Name: filepath.Base(path), Data: data}, nil
}

func techniquesCmd() *cobra.Command {
	var (
		labels []string
		k      int
		export bool
	)
	cmd := &cobra.Command{
		Use:   "techniques",
		Short: "List, query or export the technique graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, log, err := setup()
			if err != nil {
				return err
			}
			p, err := orchestrator.NewPipeline(conf, log, nil)
			if err != nil {
				return err
			}
			g := p.Graph()
			out := cmd.OutOrStdout()
			if export {
				return g.Encode(out)
			}
			if len(labels) == 0 {
				for _, t := range g.All() {
					fmt.Fprintf(out, "%-24s %s\n", t.ID, t.Name)
				}
				return nil
			}
			scores := map[string]float64{}
			for _, l := range labels {
				name, raw, found := strings.Cut(l, "=")
				v := 1.0
				if found {
					if v, err = strconv.ParseFloat(raw, 64); err != nil {
						return fmt.Errorf("bad score in %q: %w", l, err)
					}
				}
				scores[name] += v
			}
			if k <= 0 {
				k = conf.Techniques.K
			}
			for _, s := range g.Rank(emotion.New(scores), k) {
				fmt.Fprintf(out, "%.3f  %-24s %s\n", s.Score, s.ID, s.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&labels, "emotion", nil, "label=score, repeatable")
	cmd.Flags().IntVar(&k, "k", 0, "number of results (default TECHNIQUES_K)")
	cmd.Flags().BoolVar(&export, "export", false, "write the graph as YAML")
	return cmd
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show configured and supported LLM providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, _, err := setup()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "configured (in order):")
			ps := conf.Providers()
			if len(ps) == 0 {
				fmt.Fprintln(out, "  none, replies come from templates")
			}
			for i, p := range ps {
				key := "no key"
				if p.HasKey() {
					key = "key set"
				}
				fmt.Fprintf(out, "  %d. %-12s %-40s %s\n", i+1, p.ID, p.Model, key)
			}
			fmt.Fprintln(out, "supported:")
			for _, i := range responder.Available() {
				fmt.Fprintf(out, "  %-12s %-40s %s\n", i.ID, i.DefaultModel, i.Description)
			}
			return nil
		},
	}
}
