package latent

import "math"

// maxFingerprintValue bounds scaled values so that Distance cannot overflow.
const maxFingerprintValue = 1 << 31

// Fingerprint is a coarse digest of a latent: every value multiplied by a scale and truncated
// toward zero. Two fingerprints of the same source image stay close even when the encoder
// output jitters slightly between runs.
type Fingerprint struct {
	Shape  []int
	Values []int

	// invalid is set when a scaled value is NaN, infinite or out of range.
	invalid bool
}

func (t *Tensor) Fingerprint(scale float64) Fingerprint {
	f := Fingerprint{
		Shape:  append([]int(nil), t.Shape...),
		Values: make([]int, len(t.Data)),
	}
	for i, v := range t.Data {
		v = math.Trunc(v * scale)
		if math.IsNaN(v) || math.Abs(v) >= maxFingerprintValue {
			f.invalid = true
			continue
		}
		f.Values[i] = int(v)
	}
	return f
}

// Valid reports whether every value of the source latent was finite and in range.
func (f Fingerprint) Valid() bool { return !f.invalid }

// Distance is the sum of absolute element differences. It is only meaningful when
// SameShape reports true.
func (f Fingerprint) Distance(o Fingerprint) int {
	var sum int
	for i := range min(len(f.Values), len(o.Values)) {
		d := f.Values[i] - o.Values[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

func (f Fingerprint) SameShape(o Fingerprint) bool {
	return SameShape(f.Shape, o.Shape)
}

// Close reports whether both fingerprints are valid, have the same shape and differ by less than
// threshold.
func (f Fingerprint) Close(o Fingerprint, threshold int) bool {
	return f.Valid() && o.Valid() && f.SameShape(o) && f.Distance(o) < threshold
}
