package team

//Metrics are macro averaged over both teams
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

func computeMetrics(predicted, actual []int, classes int) Metrics {
	if len(actual) == 0 {
		return Metrics{}
	}
	var correct int
	tp := make([]int, classes)
	fp := make([]int, classes)
	fn := make([]int, classes)
	for i := range actual {
		if predicted[i] == actual[i] {
			correct++
			tp[actual[i]]++
		} else {
			fp[predicted[i]]++
			fn[actual[i]]++
		}
	}

	m := Metrics{Accuracy: float64(correct) / float64(len(actual))}
	for c := 0; c < classes; c++ {
		var p, r, f float64
		if tp[c]+fp[c] > 0 {
			p = float64(tp[c]) / float64(tp[c]+fp[c])
		}
		if tp[c]+fn[c] > 0 {
			r = float64(tp[c]) / float64(tp[c]+fn[c])
		}
		if p+r > 0 {
			f = 2 * p * r / (p + r)
		}
		m.Precision += p / float64(classes)
		m.Recall += r / float64(classes)
		m.F1 += f / float64(classes)
	}
	return m
}
