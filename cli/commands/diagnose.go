package commands

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-snapmink"
	"github.com/AshkanYarmoradi/go-snapmink/adapters"
	"github.com/AshkanYarmoradi/go-snapmink/adapters/breaker"
	"github.com/AshkanYarmoradi/go-snapmink/cli/styles"
)

// CheckStatus represents the status of a diagnostic check
type CheckStatus int

const (
	StatusOK CheckStatus = iota
	StatusWarning
	StatusError
)

// CheckResult represents the result of a diagnostic check
type CheckResult struct {
	Name           string
	Status         CheckStatus
	Message        string
	Recommendation string
}

func newDiagnoseCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Run diagnostic checks",
		Long: `Run diagnostic checks on your snapmink setup.

This command verifies:
  • Configuration validity
  • Event store connectivity
  • Snapshot backend health
  • Registered aggregate types`,
		Aliases: []string{"diag", "doctor"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := a.diagnose(cmd)
			if !renderChecks(cmd.OutOrStdout(), results) {
				return fmt.Errorf("diagnostics failed")
			}
			return nil
		},
	}
}

// diagnose runs every check it can. A failed configuration or connection
// check stops the checks that depend on it.
func (a *app) diagnose(cmd *cobra.Command) []CheckResult {
	var results []CheckResult

	cfg, err := a.loadConfig()
	if err != nil {
		return append(results, CheckResult{
			Name:           "Configuration",
			Status:         StatusError,
			Message:        err.Error(),
			Recommendation: "Fix snapmink.yaml or the SNAPMINK_* environment variables",
		})
	}
	results = append(results, CheckResult{
		Name:    "Configuration",
		Message: fmt.Sprintf("events: %s, snapshots: %s, threshold: %d", cfg.EventStore.Driver, cfg.Snapshots.Backend, cfg.Snapshots.Threshold),
	})
	if cfg.Snapshots.Threshold == 0 {
		results[0].Status = StatusWarning
		results[0].Recommendation = "snapshots.threshold is 0, so saves never write snapshots"
	}

	s, err := a.open(cmd)
	if err != nil {
		return append(results, CheckResult{
			Name:           "Backends",
			Status:         StatusError,
			Message:        err.Error(),
			Recommendation: "Check the database URL and snapshot backend settings",
		})
	}
	defer s.Close(cmd.Context())

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	results = append(results,
		checkHealth(ctx, "Event store", s.backends.Events),
		checkHealth(ctx, "Snapshot backend", s.backends.Snapshots),
		checkRegistry(a.registry),
	)
	return results
}

func checkHealth(ctx context.Context, name string, backend interface{}) CheckResult {
	result := CheckResult{Name: name}

	if cb, ok := findBreaker(backend); ok && cb.State() != gobreaker.StateClosed {
		result.Status = StatusWarning
		result.Message = "circuit breaker is " + cb.State().String()
		return result
	}

	hc, ok := backend.(adapters.HealthChecker)
	if !ok {
		result.Message = "no health check available"
		return result
	}
	start := time.Now()
	if err := hc.Ping(ctx); err != nil {
		result.Status = StatusError
		result.Message = err.Error()
		result.Recommendation = name + " is unreachable"
		return result
	}
	result.Message = fmt.Sprintf("reachable in %s", time.Since(start).Round(time.Millisecond))
	return result
}

func findBreaker(backend interface{}) (*breaker.SnapshotAdapter, bool) {
	for backend != nil {
		if cb, ok := backend.(*breaker.SnapshotAdapter); ok {
			return cb, true
		}
		u, ok := backend.(interface{ Unwrap() adapters.SnapshotAdapter })
		if !ok {
			return nil, false
		}
		backend = u.Unwrap()
	}
	return nil, false
}

func checkRegistry(r *Registry) CheckResult {
	names := r.Names()
	if len(names) == 0 {
		return CheckResult{
			Name:           "Aggregate types",
			Status:         StatusWarning,
			Message:        "none registered",
			Recommendation: "Register aggregate types with commands.WithRegistry to enable rebuild",
		}
	}
	return CheckResult{Name: "Aggregate types", Message: strings.Join(names, ", ")}
}

// renderChecks prints results and reports whether none failed.
func renderChecks(w io.Writer, results []CheckResult) bool {
	fmt.Fprintln(w, styles.Title.Render("Running Diagnostics"))

	passed := true
	var recommendations []string
	for _, r := range results {
		var status string
		switch r.Status {
		case StatusOK:
			status = styles.SuccessStyle.Render("OK")
		case StatusWarning:
			status = styles.WarningStyle.Render("WARNING")
		default:
			status = styles.ErrorStyle.Render("FAILED")
			passed = false
		}
		fmt.Fprintf(w, "  %s %s\n", status, r.Name)
		if r.Message != "" {
			fmt.Fprintf(w, "    %s\n", styles.Muted.Render(r.Message))
		}
		if r.Recommendation != "" {
			recommendations = append(recommendations, r.Recommendation)
		}
	}

	fmt.Fprintln(w)
	if passed && len(recommendations) == 0 {
		fmt.Fprintln(w, styles.FormatSuccess("All checks passed"))
		return true
	}
	for _, rec := range recommendations {
		fmt.Fprintf(w, "  %s %s\n", styles.IconArrow, rec)
	}
	return passed
}

// NewVersionCommand creates the version command
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styles.FormatKeyValue("Version", version))
			fmt.Fprintln(out, styles.FormatKeyValue("Library", snapmink.Version()))
			fmt.Fprintln(out, styles.FormatKeyValue("Commit", commit))
			fmt.Fprintln(out, styles.FormatKeyValue("Built", date))
			fmt.Fprintln(out, styles.FormatKeyValue("Go", runtime.Version()))
			fmt.Fprintln(out, styles.FormatKeyValue("OS/Arch", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)))
			return nil
		},
	}
}
