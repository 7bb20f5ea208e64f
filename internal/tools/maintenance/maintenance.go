// Package maintenance implements the offline maintenance command: ledger
// chain verification and trust reporting over a stored identity database.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/halcyonworks/anchorage/internal/identity/trust"
	"github.com/halcyonworks/anchorage/internal/ledger"
	apperrors "github.com/halcyonworks/anchorage/internal/platform/errors"
	"github.com/halcyonworks/anchorage/internal/storage/sqlite"
)

// Config holds maintenance command configuration.
type Config struct {
	AnchorID    string
	AnchorIDs   string
	DBPath      string
	Timeout     time.Duration
	Verify      bool
	TrustReport bool
	WarningsCap int
	JSONOutput  bool
}

// envConfig is the environment-parsed subset of Config; flags override it.
type envConfig struct {
	DBPath  string        `env:"ANCHORAGE_DB_PATH"`
	Timeout time.Duration `env:"ANCHORAGE_MAINTENANCE_TIMEOUT" envDefault:"10m"`
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		DBPath:      envCfg.DBPath,
		Timeout:     envCfg.Timeout,
		WarningsCap: 25,
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join("data", "anchorage.db")
	}

	fs.StringVar(&cfg.AnchorID, "anchor-id", "", "anchor ID to check")
	fs.StringVar(&cfg.AnchorIDs, "anchor-ids", "", "comma-separated anchor IDs to check (default: every anchor)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to identity sqlite database (default: ANCHORAGE_DB_PATH or data/anchorage.db)")
	fs.BoolVar(&cfg.Verify, "verify", false, "verify ledger hash chains (default when no mode flag is set)")
	fs.BoolVar(&cfg.TrustReport, "trust-report", false, "print trust score, level and activity per anchor")
	fs.IntVar(&cfg.WarningsCap, "warnings-cap", cfg.WarningsCap, "max warnings to print (0 = no limit)")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the maintenance command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if cfg.AnchorID != "" && cfg.AnchorIDs != "" {
		return errors.New("-anchor-id cannot be combined with -anchor-ids")
	}
	if cfg.WarningsCap < 0 {
		return errors.New("-warnings-cap must be >= 0")
	}
	if !cfg.Verify && !cfg.TrustReport {
		cfg.Verify = true
	}

	cleanPath := filepath.Clean(cfg.DBPath)
	if cleanPath == "." || cleanPath == "" {
		return errors.New("db path is required")
	}
	store, err := sqlite.Open(cleanPath)
	if err != nil {
		return fmt.Errorf("open identity store: %w", err)
	}

	return runWithDeps(ctx, cfg, store, out, errOut)
}

// runWithDeps contains the core maintenance logic with an injectable store.
// It owns the store lifecycle (closing it on return).
func runWithDeps(ctx context.Context, cfg Config, store closableStore, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(errOut, "Error: close identity store: %v\n", err)
		}
	}()

	ids, err := resolveAnchorIDs(ctx, store, cfg.AnchorID, cfg.AnchorIDs)
	if err != nil {
		return err
	}

	failed := false
	for _, id := range ids {
		var result runResult
		if cfg.TrustReport {
			result = runTrustReport(ctx, store, id)
		} else {
			result = runVerify(ctx, store, id)
		}
		result.Warnings, result.WarningsTotal = capWarnings(result.Warnings, cfg.WarningsCap)
		if cfg.JSONOutput {
			outputJSON(out, errOut, result)
		} else {
			prefix := ""
			if len(ids) > 1 {
				prefix = fmt.Sprintf("[%s] ", id)
			}
			printResult(out, errOut, result, prefix)
		}
		if result.ExitCode != 0 {
			failed = true
		}
	}
	if failed {
		return errors.New("maintenance failed")
	}
	return nil
}

type chainReport struct {
	Entries  int    `json:"entries"`
	LastSeq  uint64 `json:"last_seq"`
	Verified bool   `json:"verified"`
}

type trustReport struct {
	Status         string  `json:"status"`
	TrustScore     float64 `json:"trust_score"`
	TrustLevel     int     `json:"trust_level"`
	TrustLevelName string  `json:"trust_level_name"`
	ActiveSessions int     `json:"active_sessions"`
	TotalSessions  int     `json:"total_sessions"`
	LastActivityAt string  `json:"last_activity_at"`
}

type runResult struct {
	AnchorID      string          `json:"anchor_id"`
	Mode          string          `json:"mode"`
	Report        json.RawMessage `json:"report,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
	WarningsTotal int             `json:"warnings_total,omitempty"`
	Error         string          `json:"error,omitempty"`
	ExitCode      int             `json:"-"`
}

func runVerify(ctx context.Context, store anchorReader, anchorID string) runResult {
	result := runResult{AnchorID: anchorID, Mode: "verify"}

	entries, err := store.ListEntries(ctx, anchorID)
	if err != nil {
		result.Error = fmt.Sprintf("list ledger entries: %v", err)
		result.ExitCode = 1
		return result
	}

	report := chainReport{Entries: len(entries), Verified: true}
	if len(entries) > 0 {
		report.LastSeq = entries[len(entries)-1].Seq
	}
	if err := ledger.Verify(entries); err != nil {
		report.Verified = false
		result.ExitCode = 1
		result.Warnings = append(result.Warnings, chainWarning(err))
	}

	payload, err := json.Marshal(report)
	if err != nil {
		result.Error = fmt.Sprintf("encode report: %v", err)
		result.ExitCode = 1
		return result
	}
	result.Report = payload
	return result
}

// chainWarning flattens a chain verification failure into one printable
// line, keeping the offending sequence number when the error carries it.
func chainWarning(err error) string {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		if seq, ok := appErr.Metadata["seq"]; ok {
			return fmt.Sprintf("chain broken at seq %s: %s", seq, appErr.Message)
		}
		return appErr.Message
	}
	return err.Error()
}

func runTrustReport(ctx context.Context, store anchorReader, anchorID string) runResult {
	result := runResult{AnchorID: anchorID, Mode: "trust"}

	anchor, err := store.GetAnchor(ctx, anchorID)
	if err != nil {
		result.Error = fmt.Sprintf("load anchor: %v", err)
		result.ExitCode = 1
		return result
	}

	payload, err := json.Marshal(trustReport{
		Status:         string(anchor.Status),
		TrustScore:     anchor.TrustScore,
		TrustLevel:     anchor.TrustLevel,
		TrustLevelName: trust.LevelName(anchor.TrustLevel),
		ActiveSessions: len(anchor.ActiveSessions),
		TotalSessions:  anchor.TotalSessions,
		LastActivityAt: anchor.LastActivityAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		result.Error = fmt.Sprintf("encode report: %v", err)
		result.ExitCode = 1
		return result
	}
	result.Report = payload
	return result
}

func resolveAnchorIDs(ctx context.Context, store anchorReader, singleID, list string) ([]string, error) {
	if singleID != "" {
		return []string{singleID}, nil
	}
	if list != "" {
		ids := splitCSV(list)
		if len(ids) == 0 {
			return nil, fmt.Errorf("-anchor-ids must contain at least one anchor id")
		}
		return ids, nil
	}
	ids, err := store.ListAnchorIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list anchors: %w", err)
	}
	return ids, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	output := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		output = append(output, trimmed)
	}
	return output
}

func capWarnings(warnings []string, limit int) ([]string, int) {
	total := len(warnings)
	if limit == 0 || total <= limit {
		return warnings, total
	}
	return warnings[:limit], total
}

func outputJSON(out io.Writer, errOut io.Writer, result runResult) {
	encoded, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintf(errOut, "Error: encode report: %v\n", err)
		return
	}
	fmt.Fprintln(out, string(encoded))
}

func printResult(out io.Writer, errOut io.Writer, result runResult, prefix string) {
	if result.Error != "" {
		fmt.Fprintf(errOut, "%sError: %s\n", prefix, result.Error)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(errOut, "%sWarning: %s\n", prefix, warning)
	}
	if result.WarningsTotal > len(result.Warnings) {
		fmt.Fprintf(errOut, "%sWarning: %d more warnings suppressed\n", prefix, result.WarningsTotal-len(result.Warnings))
	}
	if len(result.Report) == 0 {
		return
	}
	if result.Mode == "trust" {
		var report trustReport
		if err := json.Unmarshal(result.Report, &report); err != nil {
			fmt.Fprintf(errOut, "%sError: decode report: %v\n", prefix, err)
			return
		}
		fmt.Fprintf(out, "%sAnchor %s: %s, trust %.1f (%s), sessions %d active / %d total, last activity %s\n",
			prefix, result.AnchorID, report.Status, report.TrustScore, report.TrustLevelName,
			report.ActiveSessions, report.TotalSessions, report.LastActivityAt)
		return
	}

	var report chainReport
	if err := json.Unmarshal(result.Report, &report); err != nil {
		fmt.Fprintf(errOut, "%sError: decode report: %v\n", prefix, err)
		return
	}
	if report.Verified {
		fmt.Fprintf(out, "%sVerified ledger chain for anchor %s (%d entries through seq %d)\n",
			prefix, result.AnchorID, report.Entries, report.LastSeq)
		return
	}
	fmt.Fprintf(out, "%sLedger chain BROKEN for anchor %s (%d entries)\n", prefix, result.AnchorID, report.Entries)
}
