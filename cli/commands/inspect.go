package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-snapmink/adapters"
	"github.com/AshkanYarmoradi/go-snapmink/cli/styles"
)

// StreamReport compares a stream with its stored snapshot.
type StreamReport struct {
	StreamID         string     `json:"stream_id"`
	StreamExists     bool       `json:"stream_exists"`
	StreamVersion    int64      `json:"stream_version"`
	HasSnapshot      bool       `json:"has_snapshot"`
	SnapshotPlayhead int64      `json:"snapshot_playhead,omitempty"`
	SnapshotBytes    int        `json:"snapshot_bytes,omitempty"`
	SnapshotTakenAt  *time.Time `json:"snapshot_taken_at,omitempty"`

	// Lag is the number of events a load replays on top of the snapshot.
	Lag int64 `json:"lag"`
}

// Inspect builds a StreamReport from the given backends.
func Inspect(ctx context.Context, b *Backends, streamID string) (*StreamReport, error) {
	report := &StreamReport{StreamID: streamID}

	info, err := b.Events.GetStreamInfo(ctx, streamID)
	switch {
	case errors.Is(err, adapters.ErrStreamNotFound):
	case err != nil:
		return nil, fmt.Errorf("read stream %s: %w", streamID, err)
	default:
		report.StreamExists = true
		report.StreamVersion = info.Version
	}

	rec, err := b.Snapshots.LoadSnapshot(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", streamID, err)
	}
	if rec != nil {
		report.HasSnapshot = true
		report.SnapshotPlayhead = rec.Version
		report.SnapshotBytes = len(rec.Data)
		if !rec.CreatedAt.IsZero() {
			taken := rec.CreatedAt
			report.SnapshotTakenAt = &taken
		}
	}

	report.Lag = report.StreamVersion - report.SnapshotPlayhead
	return report, nil
}

func newInspectCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "inspect <stream-id>",
		Short: "Compare a stream with its snapshot",
		Long: `Show a stream's version next to its snapshot's playhead.

The lag is how many events a load replays after restoring the snapshot.

Examples:
  snapmink inspect Order-42
  snapmink inspect Order-42 --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "text" && output != "json" {
				return fmt.Errorf("unknown output format %q (want text or json)", output)
			}

			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			report, err := Inspect(cmd.Context(), s.backends, args[0])
			if err != nil {
				return err
			}
			if !report.StreamExists && !report.HasSnapshot {
				return fmt.Errorf("stream %s not found", args[0])
			}

			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			renderReport(cmd.OutOrStdout(), report, s.cfg.Snapshots.Threshold)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text or json")
	return cmd
}

func renderReport(w io.Writer, r *StreamReport, threshold int) {
	rows := []string{
		styles.FormatKeyValue("Stream", r.StreamID),
		styles.FormatKeyValue("Stream version", strconv.FormatInt(r.StreamVersion, 10)),
	}

	if r.HasSnapshot {
		rows = append(rows,
			styles.FormatKeyValue("Snapshot playhead", strconv.FormatInt(r.SnapshotPlayhead, 10)),
			styles.FormatKeyValue("Snapshot size", fmt.Sprintf("%d bytes", r.SnapshotBytes)))
		if r.SnapshotTakenAt != nil {
			rows = append(rows, styles.FormatKeyValue("Snapshot taken", r.SnapshotTakenAt.Format(time.RFC3339)))
		}
	} else {
		rows = append(rows, styles.FormatKeyValue("Snapshot", "none"))
	}
	rows = append(rows, styles.FormatKeyValue("Lag", fmt.Sprintf("%d events", r.Lag)))

	fmt.Fprintln(w, styles.Box.Render(strings.Join(rows, "\n")))

	switch {
	case !r.StreamExists:
		fmt.Fprintln(w, styles.FormatWarning("Snapshot has no stream; delete it with `snapmink snapshot delete "+r.StreamID+"`"))
	case r.Lag < 0:
		fmt.Fprintln(w, styles.FormatWarning("Snapshot is ahead of the stream; the event log may have been truncated"))
	case threshold > 0 && r.Lag >= int64(threshold):
		fmt.Fprintln(w, styles.FormatWarning(fmt.Sprintf("Snapshot is %d events behind; consider a rebuild", r.Lag)))
	}
}
