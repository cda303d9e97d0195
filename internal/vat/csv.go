package vat

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/forgecommerce/invoicing/internal/calculator"
)

// ImportReport lists the rows of a CSV import that were rejected.
type ImportReport struct {
	Rates  []TaxRate
	Errors []string
}

// ParseRatesCSV reads a tax-rate catalog with the columns code, description,
// vat and surcharge. Header names are case-insensitive and description and
// surcharge are optional. Invalid rows are reported and skipped; a missing
// required column fails the whole file.
func ParseRatesCSV(r io.Reader) (ImportReport, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return ImportReport{}, fmt.Errorf("parsing CSV: %w", err)
	}
	if len(records) < 2 {
		return ImportReport{}, fmt.Errorf("CSV file is empty or contains only headers")
	}

	headers := normalizeHeaders(records[0])
	codeIdx := colIndex(headers, "code")
	descIdx := colIndex(headers, "description")
	vatIdx := colIndex(headers, "vat")
	surchargeIdx := colIndex(headers, "surcharge")
	if codeIdx < 0 || vatIdx < 0 {
		return ImportReport{}, fmt.Errorf("CSV missing required columns: code, vat")
	}

	var report ImportReport
	seen := make(map[string]int)

	for i, row := range records[1:] {
		lineNum := i + 2

		code := strings.ToUpper(colVal(row, codeIdx))
		if code == "" {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: code is required", lineNum))
			continue
		}

		vatRate, err := parsePercent(colVal(row, vatIdx))
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: invalid vat: %s", lineNum, err))
			continue
		}
		surcharge := decimal.Zero
		if s := colVal(row, surchargeIdx); s != "" {
			if surcharge, err = parsePercent(s); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("line %d: invalid surcharge: %s", lineNum, err))
				continue
			}
		}

		rate := TaxRate{
			Code:        code,
			Description: colVal(row, descIdx),
			VAT:         vatRate,
			Surcharge:   surcharge,
		}
		// A repeated code replaces the earlier row.
		if idx, ok := seen[code]; ok {
			report.Rates[idx] = rate
			continue
		}
		seen[code] = len(report.Rates)
		report.Rates = append(report.Rates, rate)
	}

	return report, nil
}

// WriteRatesCSV writes the catalog in the format ParseRatesCSV reads,
// ordered by code.
func WriteRatesCSV(w io.Writer, rates map[string]calculator.TaxRateEntry) error {
	codes := make([]string, 0, len(rates))
	for code := range rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"code", "description", "vat", "surcharge"}); err != nil {
		return err
	}
	for _, code := range codes {
		e := rates[code]
		if err := cw.Write([]string{code, e.Description, e.VAT.String(), e.Surcharge.String()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func parsePercent(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSuffix(s, "%"))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", s)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("%s is outside 0..100", d)
	}
	return d, nil
}

// normalizeHeaders lowercases and trims all header column names.
func normalizeHeaders(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}

// colIndex returns the index of the named column in the headers, or -1 if not found.
func colIndex(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}

// colVal safely returns the value at index idx from a row, or "" if out of range.
func colVal(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
