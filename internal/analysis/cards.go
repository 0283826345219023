package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Card is one materialized answer file. Answer is a JSON string for
// scalar cards and an array of row objects for tabular cards; row
// objects keep their result-set column order, which Go maps would not
// preserve, so the card body is assembled by hand rather than marshaled
// from a struct of maps.
type Card struct {
	Query       string          `json:"query"`
	Shape       Shape           `json:"shape"`
	Answer      json.RawMessage `json:"answer"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// CardWriter persists cards under a directory, one JSON file per query.
type CardWriter struct {
	dir string
}

// NewCardWriter prepares the cards directory.
func NewCardWriter(dir string) (*CardWriter, error) {
	if dir == "" {
		return nil, fmt.Errorf("cards dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cards dir: %w", err)
	}
	return &CardWriter{dir: dir}, nil
}

// Write replaces the card files for the given results. Each file is
// written to a temp sibling, fsynced and renamed into place, so a reader
// never observes a half-written card. Failed queries keep their previous
// card on disk.
func (w *CardWriter) Write(results []Result) (int, error) {
	written := 0
	for _, res := range results {
		if res.Status != QueryOK {
			continue
		}
		body, err := renderCard(res)
		if err != nil {
			return written, fmt.Errorf("render card %s: %w", res.ID, err)
		}
		if err := w.replace(res.ID+".json", body); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (w *CardWriter) replace(name string, body []byte) error {
	final := filepath.Join(w.dir, name)

	tmp, err := os.CreateTemp(w.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp card: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after rename

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("write card %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync card %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close card %s: %w", name, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		return fmt.Errorf("replace card %s: %w", name, err)
	}
	return nil
}

// renderCard builds the card JSON by hand so tabular rows serialize as
// objects with keys in result-set column order.
func renderCard(res Result) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	if err := writeField(&buf, "query", res.Label); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := writeField(&buf, "shape", string(res.Shape)); err != nil {
		return nil, err
	}
	buf.WriteByte(',')

	buf.WriteString(`"answer":`)
	if res.Shape == ShapeScalar {
		enc, err := json.Marshal(res.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(enc)
	} else {
		buf.WriteByte('[')
		for i, row := range res.Rows {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte('{')
			for j, col := range res.Columns {
				if j > 0 {
					buf.WriteByte(',')
				}
				cell := ""
				if j < len(row) {
					cell = row[j]
				}
				if err := writeField(&buf, col, cell); err != nil {
					return nil, err
				}
			}
			buf.WriteByte('}')
		}
		buf.WriteByte(']')
	}

	buf.WriteByte(',')
	if err := writeField(&buf, "generated_at", res.RanAt.Format(time.RFC3339)); err != nil {
		return nil, err
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key, value string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// Load reads every card currently on disk, sorted by file name.
func (w *CardWriter) Load() ([]Card, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read cards dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	cards := make([]Card, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(w.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read card %s: %w", name, err)
		}
		var card Card
		if err := json.Unmarshal(raw, &card); err != nil {
			return nil, fmt.Errorf("parse card %s: %w", name, err)
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// Raw returns the current card set as one JSON object,
// {"cards": {"<query id>": <card>, ...}}, preserving each card's on-disk
// byte order. Used by the HTTP cards endpoint.
func (w *CardWriter) Raw() ([]byte, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read cards dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var buf bytes.Buffer
	buf.WriteString(`{"cards":{`)
	for i, name := range names {
		raw, err := os.ReadFile(filepath.Join(w.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read card %s: %w", name, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, strings.TrimSuffix(name, ".json")); err != nil {
			return nil, err
		}
		buf.Write(bytes.TrimSpace(raw))
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	return nil
}
