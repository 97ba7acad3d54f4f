// greeter is a terminal demonstration front end for the auto-submit
// engine: pick a user, start typing the password, and the session is
// admitted as soon as the backend recognizes the credential.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/greetline/autosubmit"
	"github.com/greetline/autosubmit/auditsqlite"
	"github.com/greetline/autosubmit/backend"
	"github.com/greetline/autosubmit/backend/memauth"
	"github.com/greetline/autosubmit/backend/shadowauth"
	"github.com/greetline/autosubmit/backend/suauth"
	"github.com/greetline/autosubmit/metrics/promexport"
)

func main() {
	configPath := flag.String("config", "/etc/greetline/greeter.toml", "configuration file")
	demo := flag.Bool("demo", false, "use the in-memory demo backend (user demo, password hunter22)")
	flag.Parse()

	if err := run(*configPath, *demo); err != nil {
		fmt.Fprintln(os.Stderr, "greeter:", err)
		os.Exit(1)
	}
}

func run(configPath string, demo bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if demo {
		cfg.Backend.Kind = "demo"
		cfg.Audit.Enabled = false
	}

	be, err := buildBackend(cfg.Backend)
	if err != nil {
		return err
	}

	builder := autosubmit.New().
		WithConfig(cfg.engineConfig()).
		WithBackend(be)

	var auditDB *auditsqlite.Sink
	if cfg.Audit.Enabled {
		auditDB, err = auditsqlite.Open(cfg.Audit.Path,
			auditsqlite.WithRetention(time.Duration(cfg.Audit.RetentionDays)*24*time.Hour))
		if err != nil {
			return err
		}
		defer func() { _ = auditDB.Close() }()
		builder = builder.WithAuditSink(auditDB)
	}

	notifier := newTeaNotifier()
	engine, err := builder.WithNotifier(notifier).Build()
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr != "" {
		prometheus.MustRegister(promexport.NewCollector(engine))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			// Metrics are best effort; a busy port only loses the scrape.
			_ = http.ListenAndServe(cfg.Metrics.ListenAddr, mux)
		}()
	}

	model := newModel(engine, cfg.Greeter.DefaultUser)
	program := tea.NewProgram(model, tea.WithAltScreen())
	notifier.attach(program)

	_, err = program.Run()
	return err
}

func buildBackend(cfg backendSection) (backend.Backend, error) {
	switch cfg.Kind {
	case "shadow", "":
		fallback := suauth.New(time.Duration(cfg.CallTimeoutMs) * time.Millisecond)
		return shadowauth.New(cfg.ShadowPath, shadowauth.WithFallback(fallback)), nil
	case "su":
		return suauth.New(time.Duration(cfg.CallTimeoutMs) * time.Millisecond), nil
	case "demo":
		return memauth.New(map[string]string{"demo": "hunter22"},
			memauth.WithLatency(150*time.Millisecond)), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}
