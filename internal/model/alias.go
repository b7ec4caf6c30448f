package model

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// aliasKeys are the infobox keys whose values name the subject.
var aliasKeys = map[string]bool{
	"别名":    true,
	"中文名":   true,
	"简体中文名": true,
	"英文名":   true,
	"日文名":   true,
	"罗马字":   true,
}

// SearchAlias folds a subject's names and infobox aliases into one
// case-folded, NFC-normalized, space-separated search string. Duplicates are
// dropped and first-seen order is kept.
func SearchAlias(name, nameCN string, infobox []InfoboxItem) string {
	seen := make(map[string]bool)
	var parts []string
	add := func(s string) {
		s = FoldSearch(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		parts = append(parts, s)
	}

	add(name)
	add(nameCN)
	for _, item := range infobox {
		if !aliasKeys[item.Key] {
			continue
		}
		for _, v := range infoboxValues(item.Value) {
			add(v)
		}
	}
	return strings.Join(parts, " ")
}

// infoboxValues flattens an infobox value into its strings.
func infoboxValues(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}
	}
	var list []struct {
		K string `json:"k"`
		V string `json:"v"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, kv := range list {
		out = append(out, kv.V)
	}
	return out
}

// FoldSearch applies the normalization SearchAlias uses, so a search term can
// be matched against stored aliases. A Caser holds state, so one is made per
// call.
func FoldSearch(s string) string {
	return strings.TrimSpace(norm.NFC.String(cases.Fold().String(s)))
}
