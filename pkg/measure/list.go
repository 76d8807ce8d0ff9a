package measure

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"brainviewer/internal/models"
)

// List is the ordered, append-only record of finished measurements.
// Entries leave the list only through Clear.
type List struct {
	mu    sync.RWMutex
	items []models.Measurement
}

// NewList creates an empty list
func NewList() *List {
	return &List{}
}

// Append adds a finished measurement at the end of the list
func (l *List) Append(m models.Measurement) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, m.Clone())
}

// Len returns the number of measurements
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// All returns a copy of the measurements in insertion order
func (l *List) All() []models.Measurement {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Measurement, len(l.items))
	for i, m := range l.items {
		out[i] = m.Clone()
	}
	return out
}

// ForSlice returns the measurements taken on one slice, in insertion order
func (l *List) ForSlice(axis models.Axis, index int) []models.Measurement {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []models.Measurement
	for _, m := range l.items {
		if m.Axis == axis && m.SliceIndex == index {
			out = append(out, m.Clone())
		}
	}
	return out
}

// Clear removes every measurement
func (l *List) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
}

// WriteJSON encodes the list as a JSON array
func (l *List) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	items := l.All()
	if items == nil {
		items = []models.Measurement{}
	}
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("failed to encode measurements: %w", err)
	}
	return nil
}

// WriteCSV writes one row per measurement with the points flattened as x:y pairs
func (l *List) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "kind", "axis", "slice", "value", "unit", "points", "created_at"}); err != nil {
		return err
	}
	for _, m := range l.All() {
		pts := make([]string, len(m.Points))
		for i, p := range m.Points {
			pts[i] = strconv.FormatFloat(p.X, 'f', -1, 64) + ":" + strconv.FormatFloat(p.Y, 'f', -1, 64)
		}
		row := []string{
			m.ID,
			m.Kind.String(),
			m.Axis.String(),
			strconv.Itoa(m.SliceIndex),
			strconv.FormatFloat(m.Value, 'f', 3, 64),
			m.Unit(),
			strings.Join(pts, " "),
			m.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
