package classifier

import (
	"fmt"
	"strings"
)

type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report summarizes predictions against true labels. Confusion is indexed
// [true][predicted].
type Report struct {
	Confusion [2][2]int       `json:"confusion"`
	Classes   [2]ClassMetrics `json:"classes"`
	Accuracy  float64         `json:"accuracy"`
	MacroF1   float64         `json:"macro_f1"`
}

// Evaluate scores every row of X and compares with y.
func Evaluate(m *Model, X [][]float64, y []int) (Report, error) {
	var r Report
	if len(X) != len(y) {
		return r, fmt.Errorf("classifier: %d rows but %d labels", len(X), len(y))
	}
	for i, row := range X {
		label, _, err := m.Predict(row)
		if err != nil {
			return r, fmt.Errorf("classifier: row %d: %w", i, err)
		}
		if y[i] != 0 && y[i] != 1 {
			return r, fmt.Errorf("classifier: row %d has label %d, want 0 or 1", i, y[i])
		}
		r.Confusion[y[i]][label]++
	}

	correct := r.Confusion[0][0] + r.Confusion[1][1]
	if len(y) > 0 {
		r.Accuracy = float64(correct) / float64(len(y))
	}
	for c := 0; c < 2; c++ {
		tp := r.Confusion[c][c]
		predicted := r.Confusion[0][c] + r.Confusion[1][c]
		actual := r.Confusion[c][0] + r.Confusion[c][1]

		cm := ClassMetrics{Support: actual}
		if predicted > 0 {
			cm.Precision = float64(tp) / float64(predicted)
		}
		if actual > 0 {
			cm.Recall = float64(tp) / float64(actual)
		}
		if cm.Precision+cm.Recall > 0 {
			cm.F1 = 2 * cm.Precision * cm.Recall / (cm.Precision + cm.Recall)
		}
		r.Classes[c] = cm
	}
	r.MacroF1 = (r.Classes[0].F1 + r.Classes[1].F1) / 2
	return r, nil
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%12s %10s %10s %10s %10s\n", "", "precision", "recall", "f1-score", "support")
	for c, cm := range r.Classes {
		fmt.Fprintf(&b, "%12d %10.2f %10.2f %10.2f %10d\n", c, cm.Precision, cm.Recall, cm.F1, cm.Support)
	}
	total := r.Classes[0].Support + r.Classes[1].Support
	fmt.Fprintf(&b, "\n%12s %10s %10s %10.2f %10d\n", "accuracy", "", "", r.Accuracy, total)
	fmt.Fprintf(&b, "%12s %10s %10s %10.2f %10d\n", "macro f1", "", "", r.MacroF1, total)
	fmt.Fprintf(&b, "\nconfusion [true][pred]: %v\n", r.Confusion)
	return b.String()
}
