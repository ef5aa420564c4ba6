package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/signsync/adapter"
	"github.com/c0deZ3R0/signsync/bus"
	"github.com/c0deZ3R0/signsync/logging"
	"github.com/c0deZ3R0/signsync/models"
	"github.com/c0deZ3R0/signsync/storage/sqlite"
	"github.com/c0deZ3R0/signsync/synckit"
)

// projectApp is a minimal app that owns sign instances and answers queries
// through its adapter.
type projectApp struct {
	name    string
	adapter *adapter.Adapter

	mu    sync.Mutex
	signs []models.SignInstance
}

func (a *projectApp) Initialize(context.Context) error { return nil }
func (a *projectApp) Activate(context.Context) error   { return nil }
func (a *projectApp) Deactivate(context.Context) error { return nil }

func (a *projectApp) ExportData(context.Context) (bus.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return bus.Snapshot{"signs": len(a.signs)}, nil
}

func (a *projectApp) ImportData(context.Context, bus.Snapshot) error { return nil }

func (a *projectApp) HandleDataRequest(ctx context.Context, fromApp string, q bus.Query) bus.Response {
	return a.adapter.HandleDataRequest(ctx, fromApp, q)
}

func (a *projectApp) usage() synckit.UsageFuncs {
	return synckit.UsageFuncs{
		ForType: func(_ context.Context, code string) ([]models.SignInstance, error) {
			return a.find(func(s models.SignInstance) bool { return s.SignTypeCode == code }), nil
		},
		WithFieldData: func(_ context.Context, code, field string) ([]models.SignInstance, error) {
			return a.find(func(s models.SignInstance) bool { return s.SignTypeCode == code && s.HasFieldData(field) }), nil
		},
	}
}

func (a *projectApp) find(match func(models.SignInstance) bool) []models.SignInstance {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.SignInstance
	for _, s := range a.signs {
		if match(s) {
			out = append(out, s.Clone())
		}
	}
	return out
}

func (a *projectApp) hooks() adapter.Hooks {
	return adapter.Hooks{
		OnCascade: func(_ context.Context, code string, _ []models.SignInstance) error {
			a.mu.Lock()
			defer a.mu.Unlock()
			kept := a.signs[:0]
			for _, s := range a.signs {
				if s.SignTypeCode != code {
					kept = append(kept, s)
				}
			}
			a.signs = kept
			return nil
		},
		OnFieldRemoved: func(_ context.Context, code, field string, _ []models.SignInstance) error {
			a.mu.Lock()
			defer a.mu.Unlock()
			for i := range a.signs {
				if a.signs[i].SignTypeCode == code {
					delete(a.signs[i].FieldData, field)
				}
			}
			return nil
		},
	}
}

type demoOptions struct {
	yes        bool
	journalDSN string
}

// demo: run two apps against one bus and walk a sign type through its life.
func demoCmd(root *rootOptions) *cobra.Command {
	opts := &demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a designer and a plans app against a shared bus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout(), root, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "confirm cascading deletes and field removals")
	cmd.Flags().StringVar(&opts.journalDSN, "journal-dsn", "", "record events to this SQLite database (enables the journal)")
	return cmd
}

func runDemo(ctx context.Context, out io.Writer, root *rootOptions, opts *demoOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := root.cfg
	if opts.journalDSN != "" {
		cfg.Journal.Enabled = true
		cfg.Journal.DataSourceName = opts.journalDSN
	}
	log := logging.Default()

	b := bus.New(append(cfg.BusOptions(), bus.WithLogger(log.WithComponent("bus").Logger))...)

	if cfg.Journal.Enabled {
		jcfg := cfg.JournalOptions()
		jcfg.Logger = log.WithComponent("journal").Logger
		j, err := sqlite.New(jcfg)
		if err != nil {
			return err
		}
		defer j.Close()
		defer j.Record(b)()
	}

	metrics := synckit.NewInMemoryMetricsCollector()
	designer := &projectApp{name: "designer"}
	plans := &projectApp{name: "plans", signs: []models.SignInstance{
		{ID: "p-101", SignTypeCode: "I.1", Location: "Level 1", FieldData: map[string]string{"roomNumber": "101"}},
		{ID: "p-102", SignTypeCode: "I.1", Location: "Level 1", FieldData: map[string]string{"roomNumber": "102"}},
		{ID: "p-201", SignTypeCode: "W.1", Location: "Lobby"},
	}}

	for _, app := range []*projectApp{designer, plans} {
		mgrOpts := append(cfg.ManagerOptions(),
			synckit.WithLogger(log.WithComponent("synckit").Logger),
			synckit.WithMetricsCollector(metrics),
			synckit.WithUsageProvider(synckit.RequestUsageProvider{Bus: b, FromApp: app.name}))
		mgr, err := synckit.NewManager(b, app.name, mgrOpts...)
		if err != nil {
			return err
		}
		adOpts := append(cfg.AdapterOptions(),
			adapter.WithLogger(log.WithComponent("adapter").Logger),
			adapter.WithHooks(app.hooks()),
			adapter.WithUsage(app.usage()))
		a, err := adapter.New(b, mgr, app.name, adOpts...)
		if err != nil {
			return err
		}
		app.adapter = a
		if err := b.Register(ctx, app.name, app); err != nil {
			return err
		}
		if err := b.InitializeApp(ctx, app.name); err != nil {
			return err
		}
		if err := b.ActivateApp(ctx, app.name); err != nil {
			return err
		}
		if err := a.Start(ctx); err != nil {
			return err
		}
		defer a.Stop(ctx)
	}

	confirm := func(_ context.Context, warning string) (bool, error) {
		fmt.Fprintf(out, "? %s [%s]\n", warning, map[bool]string{true: "yes", false: "no"}[opts.yes])
		return opts.yes, nil
	}

	steps := []struct {
		op logging.Operation
		fn func() error
	}{
		{"create", func() error {
			for _, st := range []models.SignType{
				{Code: "I.1", Name: "Room ID", TextFields: []models.TextField{{FieldName: "roomNumber", MaxLength: 6}}},
				{Code: "W.1", Name: "Wayfinding", Color: "#2E7D32"},
			} {
				if _, err := designer.adapter.CreateSignType(ctx, st); err != nil {
					return err
				}
			}
			return nil
		}},
		{"add_field", func() error {
			_, err := designer.adapter.AddTextFieldLayer(ctx, "I.1", "occupant", synckit.FieldOptions{MaxLength: 40})
			return err
		}},
		{"remove_field", func() error {
			_, err := designer.adapter.RemoveTextField(ctx, "I.1", "roomNumber", confirm)
			return err
		}},
		{"delete", func() error {
			_, err := designer.adapter.DeleteSignType(ctx, "I.1", confirm)
			return err
		}},
	}
	for _, step := range steps {
		if err := log.LogOperation(ctx, step.op, "demo", step.fn); err != nil {
			return err
		}
		if err := b.Drain(ctx); err != nil {
			return err
		}
		printView(out, string(step.op), plans)
	}

	printMetrics(out, metrics.Snapshot())
	return nil
}

func printView(out io.Writer, step string, app *projectApp) {
	fmt.Fprintf(out, "after %s, %s sees:\n", step, app.name)
	for _, st := range app.adapter.GetSignTypes() {
		fmt.Fprintf(out, "  %-4s %-12s fields=[%s]\n", st.Code, st.Name, strings.Join(st.FieldNames(), ","))
	}
	app.mu.Lock()
	defer app.mu.Unlock()
	fmt.Fprintf(out, "  %d sign(s) placed\n", len(app.signs))
}

func printMetrics(out io.Writer, s synckit.MetricsSnapshot) {
	fmt.Fprintln(out, "metrics:")
	ops := make([]string, 0, len(s.Operations))
	for op := range s.Operations {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Fprintf(out, "  %-18s %d\n", op, s.Operations[op])
	}
	fmt.Fprintf(out, "  cascades confirmed=%d declined=%d signs=%d\n", s.CascadesConfirmed, s.CascadesDeclined, s.CascadedSigns)
}
