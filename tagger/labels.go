package tagger

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Category groups labels for presentation and thresholding.
type Category int

const (
	CategoryGeneral Category = iota
	CategoryCharacter
	CategoryRating
)

func (c Category) String() string {
	switch c {
	case CategoryGeneral:
		return "general"
	case CategoryCharacter:
		return "character"
	case CategoryRating:
		return "rating"
	default:
		return "unknown"
	}
}

// Default per-category confidence thresholds, matching upstream defaults.
// Rating defaults to zero so all rating scores are reported and the caller
// can pick the maximum if it wants a single winner.
const (
	DefaultGeneralThreshold   float32 = 0.35
	DefaultCharacterThreshold float32 = 0.85
	DefaultRatingThreshold    float32 = 0
)

// Label is one output class the model can score. Index is the column of the
// model's output vector holding this label's score.
type Label struct {
	Index            int
	Name             string
	Category         Category
	DefaultThreshold float32
}

// LabelTable is the ordered list of labels for one model variant. Row order
// in the source table equals column order in the model output; the table and
// the model are a matched pair and must be loaded together.
type LabelTable struct {
	labels []Label
}

func (t *LabelTable) Len() int        { return len(t.labels) }
func (t *LabelTable) At(i int) Label  { return t.labels[i] }
func (t *LabelTable) Labels() []Label { return t.labels }

// Danbooru category codes used by the selected_tags.csv files. The v3 tables
// only carry general/character/rating; older tables may also carry artist,
// copyright and meta rows, which fold into the general bucket.
func categoryFromCode(code int) (Category, bool) {
	switch code {
	case 0, 1, 3, 5:
		return CategoryGeneral, true
	case 4:
		return CategoryCharacter, true
	case 9:
		return CategoryRating, true
	default:
		return 0, false
	}
}

func defaultThreshold(c Category) float32 {
	switch c {
	case CategoryCharacter:
		return DefaultCharacterThreshold
	case CategoryRating:
		return DefaultRatingThreshold
	default:
		return DefaultGeneralThreshold
	}
}

// LoadLabels reads a selected_tags.csv style table from disk.
func LoadLabels(path string) (*LabelTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tag table: %w", err)
	}
	defer f.Close()
	return ParseLabels(f)
}

// ParseLabels reads a CSV table with a tag_id,name,category,count header.
// Row order is significant: row i labels output column i.
func ParseLabels(r io.Reader) (*LabelTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &MalformedTableError{Reason: "empty table"}
	}
	if err != nil {
		return nil, &MalformedTableError{Line: 1, Reason: err.Error()}
	}

	nameCol, categoryCol := -1, -1
	for i, col := range header {
		switch col {
		case "name":
			nameCol = i
		case "category":
			categoryCol = i
		}
	}
	if nameCol < 0 || categoryCol < 0 {
		return nil, &MalformedTableError{Line: 1, Reason: "missing name or category column"}
	}

	var labels []Label
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &MalformedTableError{Line: line, Reason: err.Error()}
		}
		if len(record) <= nameCol || len(record) <= categoryCol {
			return nil, &MalformedTableError{Line: line, Reason: "missing required field"}
		}
		name := record[nameCol]
		if name == "" {
			return nil, &MalformedTableError{Line: line, Reason: "empty tag name"}
		}
		code, err := strconv.Atoi(record[categoryCol])
		if err != nil {
			return nil, &MalformedTableError{Line: line, Reason: fmt.Sprintf("bad category %q", record[categoryCol])}
		}
		category, ok := categoryFromCode(code)
		if !ok {
			return nil, &MalformedTableError{Line: line, Reason: fmt.Sprintf("unknown category code %d", code)}
		}
		labels = append(labels, Label{
			Index:            len(labels),
			Name:             name,
			Category:         category,
			DefaultThreshold: defaultThreshold(category),
		})
	}

	if len(labels) == 0 {
		return nil, &MalformedTableError{Reason: "table has no rows"}
	}
	return &LabelTable{labels: labels}, nil
}
