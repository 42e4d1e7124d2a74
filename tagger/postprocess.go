package tagger

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// TagScore is one tag that cleared its threshold.
type TagScore struct {
	Tag   string  `json:"tag"`
	Score float32 `json:"score"`
}

// Result is the categorized output of one inference call. Within each
// category, entries are in label-index order unless score sorting was
// requested. A Result is never partially populated: on any error the whole
// call fails instead.
type Result struct {
	Rating    []TagScore
	Character []TagScore
	General   []TagScore
}

// ByCategory returns the slice for one category.
func (r Result) ByCategory(c Category) []TagScore {
	switch c {
	case CategoryRating:
		return r.Rating
	case CategoryCharacter:
		return r.Character
	default:
		return r.General
	}
}

// MarshalJSON emits three named tag→score mappings, preserving entry order.
// The value receiver keeps Result values and pointers marshaling the same
// way.
func (r Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	appendCategory(&buf, "rating", r.Rating)
	buf.WriteByte(',')
	appendCategory(&buf, "character", r.Character)
	buf.WriteByte(',')
	appendCategory(&buf, "general", r.General)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func appendCategory(buf *bytes.Buffer, name string, items []TagScore) {
	buf.WriteByte('"')
	buf.WriteString(name)
	buf.WriteString(`":{`)
	for i, item := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(item.Tag)
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(float64(item.Score), 'g', -1, 32))
	}
	buf.WriteByte('}')
}

// Options controls thresholding and result ordering.
type Options struct {
	// Thresholds overrides the per-category defaults for categories present
	// in the map.
	Thresholds map[Category]float32
	// SortByScore orders each category by descending score instead of label
	// index.
	SortByScore bool
	// MCut derives adaptive thresholds for the general and character
	// categories from the largest gap in the sorted score curve, replacing
	// the fixed thresholds for those categories. The character threshold is
	// floored at 0.15, matching upstream behavior.
	MCut bool
}

const mcutCharacterFloor float32 = 0.15

// Postprocess maps a raw score vector through the label table into a
// categorized, thresholded result.
func Postprocess(scores []float32, table *LabelTable, opts Options) (*Result, error) {
	if len(scores) != table.Len() {
		return nil, &LengthMismatchError{Scores: len(scores), Labels: table.Len()}
	}

	var mcutGeneral, mcutCharacter float32
	if opts.MCut {
		var general, character []float32
		for i, score := range scores {
			switch table.At(i).Category {
			case CategoryGeneral:
				general = append(general, score)
			case CategoryCharacter:
				character = append(character, score)
			}
		}
		mcutGeneral = mcutThreshold(general)
		mcutCharacter = max(mcutThreshold(character), mcutCharacterFloor)
	}

	result := &Result{}
	for i, score := range scores {
		label := table.At(i)
		threshold := label.DefaultThreshold
		if t, ok := opts.Thresholds[label.Category]; ok {
			threshold = t
		}
		if opts.MCut {
			switch label.Category {
			case CategoryGeneral:
				threshold = mcutGeneral
			case CategoryCharacter:
				threshold = mcutCharacter
			}
		}
		if score < threshold {
			continue
		}
		entry := TagScore{Tag: label.Name, Score: score}
		switch label.Category {
		case CategoryRating:
			result.Rating = append(result.Rating, entry)
		case CategoryCharacter:
			result.Character = append(result.Character, entry)
		default:
			result.General = append(result.General, entry)
		}
	}

	if opts.SortByScore {
		for _, items := range [][]TagScore{result.Rating, result.Character, result.General} {
			sort.SliceStable(items, func(i, j int) bool {
				return items[i].Score > items[j].Score
			})
		}
	}
	return result, nil
}

// mcutThreshold finds the midpoint of the largest gap between consecutive
// scores in descending order (Maximum Cut Thresholding).
func mcutThreshold(scores []float32) float32 {
	if len(scores) < 2 {
		return 0
	}
	sorted := make([]float32, len(scores))
	copy(sorted, scores)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })

	cut := 0
	maxGap := float32(-1)
	for i := 0; i < len(sorted)-1; i++ {
		if gap := sorted[i] - sorted[i+1]; gap > maxGap {
			maxGap = gap
			cut = i
		}
	}
	return (sorted[cut] + sorted[cut+1]) / 2
}
