package utils

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"levelBot/internal/replay"
)

// WriteTradesToCSV writes replayed trades to a CSV file.
func WriteTradesToCSV(trades []replay.Trade, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"PositionID", "Direction", "OpenLevel", "EntryPrice", "ExitPrice", "Quantity", "Orders", "PNL", "ClosedBy", "EntryTime", "ExitTime"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		record := []string{
			strconv.FormatInt(t.PositionID, 10),
			t.Direction,
			strconv.FormatFloat(t.OpenLevel, 'f', -1, 64),
			strconv.FormatFloat(t.EntryPrice, 'f', 8, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', 8, 64),
			strconv.FormatFloat(t.Quantity, 'f', -1, 64),
			strconv.Itoa(t.Orders),
			strconv.FormatFloat(t.PNL, 'f', 8, 64),
			string(t.ClosedBy),
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
