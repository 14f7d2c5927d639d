package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"ipchain/core/events"
)

// Anomaly kinds raised by reconciliation.
const (
	AnomalyMissingOnChain = "missing_onchain"
	AnomalyChainOnly      = "chain_only"
	AnomalyTotalMismatch  = "token_total_mismatch"
	AnomalyStalePending   = "stale_pending"
)

// ReconRunOptions bounds a reconciliation pass.
type ReconRunOptions struct {
	Start  time.Time
	End    time.Time
	DryRun bool
}

// ReconAnomaly is one discrepancy surfaced by a pass.
type ReconAnomaly struct {
	Kind    string `json:"kind"`
	Token   string `json:"token,omitempty"`
	Payment string `json:"payment,omitempty"`
	Detail  string `json:"detail"`
}

// ReconTokenTotal compares gateway and chain volume for one token.
type ReconTokenTotal struct {
	Local string `json:"local"`
	Chain string `json:"chain"`
}

// ReconResult summarises a reconciliation pass.
type ReconResult struct {
	Start     time.Time                  `json:"start"`
	End       time.Time                  `json:"end"`
	Rows      int                        `json:"rows"`
	Files     []string                   `json:"files,omitempty"`
	Anomalies []ReconAnomaly             `json:"anomalies,omitempty"`
	Totals    map[string]ReconTokenTotal `json:"totals"`
}

// ReconRow is one exported payment with its on-chain match state.
type ReconRow struct {
	PaymentID   string
	Kind        string
	ReceiverIP  string
	PayerIP     string
	Token       string
	Amount      string
	Status      string
	SubmittedBy string
	CreatedAt   time.Time
	Matched     bool
	Anomaly     string
}

// Reconciler joins gateway payments against the node's royalty event stream.
type Reconciler struct {
	store        *SQLiteStore
	node         NodeClient
	outputDir    string
	dryRun       bool
	stalePending time.Duration
	nowFn        func() time.Time
	logger       *slog.Logger
}

// ReconcilerConfig wires a Reconciler.
type ReconcilerConfig struct {
	Store        *SQLiteStore
	Node         NodeClient
	OutputDir    string
	DryRun       bool
	StalePending time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

// NewReconciler builds a Reconciler with defaults applied.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stale := cfg.StalePending
	if stale <= 0 {
		stale = 15 * time.Minute
	}
	return &Reconciler{
		store:        cfg.Store,
		node:         cfg.Node,
		outputDir:    cfg.OutputDir,
		dryRun:       cfg.DryRun,
		stalePending: stale,
		nowFn:        now,
		logger:       logger,
	}
}

type matchKey struct {
	kind     string
	receiver string
	token    string
	amount   string
}

// Run reconciles the window [opts.Start, opts.End) and exports the report.
func (r *Reconciler) Run(ctx context.Context, opts ReconRunOptions) (ReconResult, error) {
	result := ReconResult{Start: opts.Start, End: opts.End, Totals: map[string]ReconTokenTotal{}}
	if !opts.Start.Before(opts.End) {
		return result, fmt.Errorf("recon: start %s must precede end %s", opts.Start, opts.End)
	}

	payments, err := r.store.ListPayments(ctx, opts.Start, opts.End)
	if err != nil {
		return result, fmt.Errorf("recon: %w", err)
	}
	chainEvents, err := r.fetchPaymentEvents(ctx, opts.Start, opts.End)
	if err != nil {
		return result, fmt.Errorf("recon: %w", err)
	}

	// Multiset of chain payments, consumed as local records match.
	pending := make(map[matchKey]int, len(chainEvents))
	chainTotals := map[string]*big.Int{}
	for _, ev := range chainEvents {
		pending[ev.key]++
		addAmount(chainTotals, ev.key.token, ev.key.amount)
	}

	localTotals := map[string]*big.Int{}
	rows := make([]ReconRow, 0, len(payments))
	anomalies := []ReconAnomaly{}
	for _, payment := range payments {
		row := ReconRow{
			PaymentID:   payment.ID,
			Kind:        payment.Kind,
			ReceiverIP:  payment.ReceiverIP,
			PayerIP:     payment.PayerIP,
			Token:       payment.Token,
			Amount:      payment.Amount,
			Status:      payment.Status,
			SubmittedBy: payment.SubmittedBy,
			CreatedAt:   payment.CreatedAt,
		}
		switch payment.Status {
		case StatusConfirmed:
			addAmount(localTotals, payment.Token, payment.Amount)
			key := matchKey{kind: payment.Kind, receiver: payment.ReceiverIP, token: payment.Token, amount: payment.Amount}
			if pending[key] > 0 {
				pending[key]--
				row.Matched = true
			} else {
				row.Anomaly = AnomalyMissingOnChain
				anomalies = append(anomalies, ReconAnomaly{
					Kind:    AnomalyMissingOnChain,
					Token:   payment.Token,
					Payment: payment.ID,
					Detail:  fmt.Sprintf("confirmed %s payment has no matching chain event", payment.Kind),
				})
			}
		case StatusPending:
			if r.nowFn().Sub(payment.CreatedAt) > r.stalePending {
				row.Anomaly = AnomalyStalePending
				anomalies = append(anomalies, ReconAnomaly{
					Kind:    AnomalyStalePending,
					Token:   payment.Token,
					Payment: payment.ID,
					Detail:  fmt.Sprintf("payment pending since %s", payment.CreatedAt.Format(time.RFC3339)),
				})
			}
		}
		rows = append(rows, row)
	}

	for key, count := range pending {
		if count == 0 {
			continue
		}
		anomalies = append(anomalies, ReconAnomaly{
			Kind:  AnomalyChainOnly,
			Token: key.token,
			Detail: fmt.Sprintf("%d chain %s event(s) for receiver %s amount %s without gateway record",
				count, key.kind, key.receiver, key.amount),
		})
	}

	for _, token := range unionTokens(localTotals, chainTotals) {
		local := totalOrZero(localTotals, token)
		chain := totalOrZero(chainTotals, token)
		result.Totals[token] = ReconTokenTotal{Local: local.String(), Chain: chain.String()}
		if local.Cmp(chain) != 0 {
			anomalies = append(anomalies, ReconAnomaly{
				Kind:   AnomalyTotalMismatch,
				Token:  token,
				Detail: fmt.Sprintf("gateway total %s vs chain total %s", local, chain),
			})
		}
	}

	result.Rows = len(rows)
	result.Anomalies = anomalies

	if opts.DryRun || r.dryRun {
		r.logger.Info("recon dry run", "rows", len(rows), "anomalies", len(anomalies))
		return result, nil
	}

	runDir := filepath.Join(r.outputDir, fmt.Sprintf("%s_%s", opts.Start.Format("20060102"), opts.End.Format("20060102")))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return result, fmt.Errorf("recon: create run dir: %w", err)
	}
	csvPath := filepath.Join(runDir, "payments.csv")
	if err := writeCSV(csvPath, rows); err != nil {
		return result, err
	}
	parquetPath := filepath.Join(runDir, "payments.parquet")
	if err := writeParquet(parquetPath, rows); err != nil {
		return result, err
	}
	result.Files = []string{csvPath, parquetPath}
	r.logger.Info("recon complete", "rows", len(rows), "anomalies", len(anomalies), "dir", runDir)
	return result, nil
}

type chainPayment struct {
	key matchKey
}

// fetchPaymentEvents pages the node event stream and keeps royalty and fee
// payments that landed inside [start, end).
func (r *Reconciler) fetchPaymentEvents(ctx context.Context, start, end time.Time) ([]chainPayment, error) {
	var out []chainPayment
	cursor := ""
	for {
		batch, err := r.node.ListEvents(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		if len(batch) == 0 {
			return out, nil
		}
		for _, ev := range batch {
			at := time.Unix(ev.Timestamp, 0).UTC()
			if at.Before(start) || !at.Before(end) {
				continue
			}
			switch ev.Type {
			case events.TypeRoyaltyPaid:
				out = append(out, chainPayment{key: matchKey{
					kind:     KindRoyalty,
					receiver: ev.Attributes["receiverIpAsset"],
					token:    ev.Attributes["token"],
					amount:   ev.Attributes["amount"],
				}})
			case events.TypeRoyaltyMintingFeePaid:
				out = append(out, chainPayment{key: matchKey{
					kind:     KindFee,
					receiver: ev.Attributes["receiverIpAsset"],
					token:    ev.Attributes["token"],
					amount:   ev.Attributes["amount"],
				}})
			}
		}
		next := batch[len(batch)-1].Cursor
		if next == "" || next == cursor {
			return out, nil
		}
		cursor = next
	}
}

func addAmount(totals map[string]*big.Int, token, amount string) {
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return
	}
	if existing, ok := totals[token]; ok {
		existing.Add(existing, value)
		return
	}
	totals[token] = value
}

func totalOrZero(totals map[string]*big.Int, token string) *big.Int {
	if value, ok := totals[token]; ok {
		return value
	}
	return big.NewInt(0)
}

func unionTokens(a, b map[string]*big.Int) []string {
	seen := map[string]struct{}{}
	for token := range a {
		seen[token] = struct{}{}
	}
	for token := range b {
		seen[token] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for token := range seen {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

func writeCSV(path string, rows []ReconRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recon: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	header := []string{
		"payment_id", "kind", "receiver_ip", "payer_ip", "token", "amount",
		"status", "submitted_by", "created_at", "matched_onchain", "anomaly",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("recon: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.PaymentID,
			row.Kind,
			row.ReceiverIP,
			row.PayerIP,
			row.Token,
			row.Amount,
			row.Status,
			row.SubmittedBy,
			row.CreatedAt.Format(time.RFC3339),
			boolString(row.Matched),
			row.Anomaly,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("recon: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("recon: flush csv: %w", err)
	}
	return nil
}

type parquetRow struct {
	PaymentID   string  `parquet:"name=payment_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Kind        string  `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReceiverIP  string  `parquet:"name=receiver_ip, type=BYTE_ARRAY, convertedtype=UTF8"`
	PayerIP     string  `parquet:"name=payer_ip, type=BYTE_ARRAY, convertedtype=UTF8"`
	Token       string  `parquet:"name=token, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount      string  `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	AmountValue float64 `parquet:"name=amount_value, type=DOUBLE"`
	Status      string  `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	SubmittedBy string  `parquet:"name=submitted_by, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt   string  `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	Matched     bool    `parquet:"name=matched_onchain, type=BOOLEAN"`
	Anomaly     string  `parquet:"name=anomaly, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func writeParquet(path string, rows []ReconRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recon: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("recon: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		amountValue, _ := strconv.ParseFloat(row.Amount, 64)
		pr := &parquetRow{
			PaymentID:   row.PaymentID,
			Kind:        row.Kind,
			ReceiverIP:  row.ReceiverIP,
			PayerIP:     row.PayerIP,
			Token:       row.Token,
			Amount:      row.Amount,
			AmountValue: amountValue,
			Status:      row.Status,
			SubmittedBy: row.SubmittedBy,
			CreatedAt:   row.CreatedAt.Format(time.RFC3339),
			Matched:     row.Matched,
			Anomaly:     row.Anomaly,
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("recon: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("recon: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("recon: close parquet file: %w", err)
	}
	return nil
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
