package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"levelBot/internal/domain"
)

var tickHeader = []string{"time", "symbol", "price"}

// WriteTicksToCSV stores ticks as time,symbol,price rows with a header.
func WriteTicksToCSV(ticks []domain.Tick, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(tickHeader); err != nil {
		return err
	}
	for _, t := range ticks {
		if err := writer.Write([]string{
			t.Time.UTC().Format(time.RFC3339Nano),
			t.Symbol,
			strconv.FormatFloat(t.Price, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadTicksFromCSV loads a file written by WriteTicksToCSV.
func ReadTicksFromCSV(filename string) ([]domain.Tick, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadTicks(file)
}

// ReadTicks parses tick rows from r. The header row is required.
func ReadTicks(r io.Reader) ([]domain.Tick, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(tickHeader)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading tick header: %w", err)
	}
	for i, col := range tickHeader {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected tick header %v", header)
		}
	}

	var ticks []domain.Tick
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		at, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing time '%s': %w", line, rec[0], err)
		}
		price, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing price '%s': %w", line, rec[2], err)
		}
		ticks = append(ticks, domain.Tick{Time: at, Symbol: rec[1], Price: price})
	}
	return ticks, nil
}
