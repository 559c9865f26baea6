package speech

import "math"

// chiSquaredP computes the two-tailed p-value of a 2x2 contingency
// table [[c1, n1-c1], [c2, n2-c2]] via the normal approximation of the
// two-proportion z-test, which is equivalent to chi-square with one
// degree of freedom.
func chiSquaredP(count1, n1, count2, n2 int) float64 {
	if n1 <= 0 || n2 <= 0 {
		return 1
	}
	p1 := float64(count1) / float64(n1)
	p2 := float64(count2) / float64(n2)
	pooled := float64(count1+count2) / float64(n1+n2)
	if pooled <= 0 || pooled >= 1 {
		return 1
	}
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 1
	}
	z := (p2 - p1) / se
	return twoTailedP(z)
}

// zTestP computes the two-tailed p-value of a difference of means
// given an estimated pooled standard deviation.
func zTestP(value1, value2 float64, n1, n2 int, pooledStd float64) float64 {
	if pooledStd == 0 || n1 <= 0 || n2 <= 0 {
		return 1
	}
	se := pooledStd * math.Sqrt(1/float64(n1)+1/float64(n2))
	if se == 0 {
		return 1
	}
	z := (value2 - value1) / se
	return twoTailedP(z)
}

// twoTailedP converts a z-score into a two-tailed p-value using the
// complementary error function.
func twoTailedP(z float64) float64 {
	p := math.Erfc(math.Abs(z) / math.Sqrt2)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// typicalStds are per-metric standard deviations observed in Spanish
// literary corpora; they scale with the magnitude of the values.
var typicalStds = map[string]float64{
	"formality_score":     0.15,
	"avg_sentence_length": 3.5,
	"lexical_diversity":   0.08,
}

// estimatePooledStd scales the corpus-typical deviation by value
// magnitude.
func estimatePooledStd(metric string, value1, value2 float64) float64 {
	base, ok := typicalStds[metric]
	if !ok {
		base = 0.10
	}
	avg := (value1 + value2) / 2
	scaling := avg / 10
	if scaling < 0.1 {
		scaling = 0.1
	}
	return base * scaling
}
