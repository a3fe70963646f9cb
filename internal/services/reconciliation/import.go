package reconciliation

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"deposit-reconciliation-backend/internal/models"
)

const DefaultImportProvider = "csv"

var importDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-01-2006",
}

// ImportSummary counts the outcome of every data row of one statement file.
type ImportSummary struct {
	File        string `json:"file"`
	Received    int    `json:"received"`
	Duplicates  int    `json:"duplicates"`
	AutoMatched int    `json:"autoMatched"`
	Unmatched   int    `json:"unmatched"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
}

var importColumns = []string{
	"transaction_id",
	"transaction_date",
	"depositor_name",
	"amount",
	"bank_code",
	"account_number",
	"memo",
}

// ImportCSV ingests a bank statement. The header row names the columns; the
// delimiter is a comma unless the first line only contains tabs. Each row
// goes through Ingest, so re-importing a file only produces duplicates.
func (s *Service) ImportCSV(ctx context.Context, provider, filename string, r io.Reader) (*ImportSummary, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = DefaultImportProvider
	}
	log := s.log.With(zap.String("file", filename), zap.String("provider", provider))

	br := bufio.NewReader(r)
	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if first, _ := br.Peek(1024); !strings.Contains(firstLine(first), ",") && strings.Contains(firstLine(first), "\t") {
		reader.Comma = '\t'
	}

	headerRow, err := reader.Read()
	if err != nil {
		return nil, models.Validation("cannot read CSV header")
	}
	index, err := columnIndex(headerRow)
	if err != nil {
		return nil, err
	}

	summary := &ImportSummary{File: filename}
	rowNum := 1
	for {
		record, err := reader.Read()
		rowNum++
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn("skipping unreadable row", zap.Int("row", rowNum), zap.Error(err))
			summary.Skipped++
			continue
		}
		if strings.TrimSpace(strings.Join(record, "")) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, models.StorageUnavailable(err)
		}

		ev, err := rowEvent(provider, record, index)
		if err != nil {
			log.Warn("skipping row", zap.Int("row", rowNum), zap.Error(err))
			summary.Skipped++
			continue
		}

		res, err := s.Ingest(ctx, ev)
		switch {
		case errors.Is(err, models.ErrValidation):
			log.Warn("skipping row", zap.Int("row", rowNum), zap.Error(err))
			summary.Skipped++
			continue
		case err != nil:
			log.Error("row ingest failed", zap.Int("row", rowNum), zap.Error(err))
			summary.Failed++
			continue
		}

		switch res.Status {
		case models.DepositStatusDuplicate:
			summary.Duplicates++
		case models.DepositStatusAutoMatched:
			summary.Received++
			summary.AutoMatched++
		default:
			summary.Received++
			summary.Unmatched++
		}
	}

	log.Info("statement imported",
		zap.Int("received", summary.Received),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("auto_matched", summary.AutoMatched),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func firstLine(b []byte) string {
	line, _, _ := strings.Cut(string(b), "\n")
	return line
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		index[name] = i
	}
	for _, required := range []string{"transaction_id", "transaction_date", "amount"} {
		if _, ok := index[required]; !ok {
			return nil, models.Validation("missing column " + required)
		}
	}
	return index, nil
}

func rowEvent(provider string, record []string, index map[string]int) (models.DepositEvent, error) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	amount, err := ParseAmount(field("amount"))
	if err != nil {
		return models.DepositEvent{}, err
	}
	date, err := parseImportDate(field("transaction_date"))
	if err != nil {
		return models.DepositEvent{}, err
	}

	raw := make(map[string]string, len(importColumns))
	for _, name := range importColumns {
		if v := field(name); v != "" {
			raw[name] = v
		}
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return models.DepositEvent{}, err
	}

	return models.DepositEvent{
		Provider:        provider,
		ExternalID:      field("transaction_id"),
		BankCode:        field("bank_code"),
		AccountNumber:   field("account_number"),
		DepositorName:   field("depositor_name"),
		Amount:          amount,
		TransactionDate: date,
		Memo:            field("memo"),
		RawPayload:      payload,
	}, nil
}

// ParseAmount reads an integer amount in minor units, accepting thousands
// separators such as "50,000".
func ParseAmount(s string) (int64, error) {
	cleaned := strings.NewReplacer(",", "", " ", "", "_", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return 0, models.Validation("amount is required")
	}
	amount, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, models.Validation(fmt.Sprintf("invalid amount %q", s))
	}
	return amount, nil
}

func parseImportDate(s string) (time.Time, error) {
	for _, layout := range importDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, models.Validation(fmt.Sprintf("invalid transaction date %q", s))
}
