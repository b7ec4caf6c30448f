package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/chii/internal/model"
)

// Dump writes every entity row as one canonical JSON line, kinds in stable
// order and rows in key order. Two stores holding the same entities produce
// byte-identical dumps.
func (s *Store) Dump(ctx context.Context, w io.Writer) error {
	return s.View(ctx, func(v *Snapshot) error {
		for _, kind := range model.Kinds() {
			sc, _ := model.SchemaFor(kind)
			query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s ASC",
				strings.Join(sc.SelectList(), ", "), sc.Table, sc.Key)
			rows, err := v.QueryFields(ctx, kind, query, nil)
			if err != nil {
				return fmt.Errorf("dump %s: %w", kind, err)
			}
			for _, f := range rows {
				line, err := model.MarshalCanonical(map[string]any{
					"kind":   kind,
					"fields": dumpFields(sc, f),
				})
				if err != nil {
					return fmt.Errorf("dump %s: %w", kind, err)
				}
				if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// dumpFields drops NULL columns and inlines JSON columns as documents.
func dumpFields(sc model.Schema, f model.Fields) map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		if v == nil {
			continue
		}
		if t, _ := sc.FieldType(k); t == model.ColJSON {
			if text, ok := v.(string); ok {
				out[k] = json.RawMessage(text)
				continue
			}
		}
		out[k] = v
	}
	return out
}
