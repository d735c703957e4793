package latent

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Tensor is a dense row-major float tensor, usually shaped [batch, channels, H, W].
type Tensor struct {
	Shape []int
	Data  []float64
}

var ErrShapeMismatch = errors.New("shape mismatch")

func New(shape ...int) *Tensor {
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  make([]float64, numel(shape)),
	}
}

// FromData wraps data without copying it.
func FromData(data []float64, shape ...int) (*Tensor, error) {
	if n := numel(shape); n != len(data) {
		return nil, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrShapeMismatch, shape, n, len(data))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

func numel(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func (t *Tensor) Len() int { return len(t.Data) }

// Bytes is the in-memory size of the values.
func (t *Tensor) Bytes() uint64 { return uint64(len(t.Data)) * 8 }

// Batch is the size of the leading dimension.
func (t *Tensor) Batch() int {
	if len(t.Shape) == 0 {
		return 1
	}
	return t.Shape[0]
}

// SampleLen is the number of values in one batch element.
func (t *Tensor) SampleLen() int {
	if t.Batch() == 0 {
		return 0
	}
	return len(t.Data) / t.Batch()
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float64(nil), t.Data...),
	}
}

func (t *Tensor) SameShape(o *Tensor) bool {
	return SameShape(t.Shape, o.Shape)
}

func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}

func mustMatch(a, b *Tensor) error {
	if !a.SameShape(b) {
		return fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, a.Shape, b.Shape)
	}
	return nil
}

// Concat joins tensors along the batch dimension.
func Concat(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, errors.New("nothing to concatenate")
	}
	inner := ts[0].Shape[1:]
	batch := 0
	size := 0
	for _, t := range ts {
		if !SameShape(t.Shape[1:], inner) {
			return nil, fmt.Errorf("%w: cannot concatenate %v with %v", ErrShapeMismatch, ts[0].Shape, t.Shape)
		}
		batch += t.Batch()
		size += t.Len()
	}
	out := &Tensor{
		Shape: append([]int{batch}, inner...),
		Data:  make([]float64, 0, size),
	}
	for _, t := range ts {
		out.Data = append(out.Data, t.Data...)
	}
	return out, nil
}

// RepeatInto writes n copies of t along the batch dimension into dst.
func RepeatInto(dst, t *Tensor, n int) error {
	if dst.Len() != t.Len()*n {
		return fmt.Errorf("%w: cannot repeat %v %d times into %v", ErrShapeMismatch, t.Shape, n, dst.Shape)
	}
	for i := range n {
		copy(dst.Data[i*t.Len():], t.Data)
	}
	return nil
}

// Chunk2 splits t into two equal halves along the batch dimension. The halves share t's storage.
func (t *Tensor) Chunk2() (*Tensor, *Tensor, error) {
	if t.Batch()%2 != 0 {
		return nil, nil, fmt.Errorf("%w: batch %d is not even", ErrShapeMismatch, t.Batch())
	}
	half := len(t.Data) / 2
	shape := append([]int{t.Batch() / 2}, t.Shape[1:]...)
	a := &Tensor{Shape: shape, Data: t.Data[:half]}
	b := &Tensor{Shape: append([]int(nil), shape...), Data: t.Data[half:]}
	return a, b, nil
}

// Scale multiplies every value by c in place.
func (t *Tensor) Scale(c float64) *Tensor {
	floats.Scale(c, t.Data)
	return t
}

// ScalePerSample multiplies each batch element by its own coefficient, broadcasting over the
// remaining dimensions.
func (t *Tensor) ScalePerSample(coeffs []float64) error {
	if len(coeffs) != t.Batch() {
		return fmt.Errorf("%w: %d coefficients for batch %d", ErrShapeMismatch, len(coeffs), t.Batch())
	}
	n := t.SampleLen()
	for b, c := range coeffs {
		floats.Scale(c, t.Data[b*n:(b+1)*n])
	}
	return nil
}

// AddScaledPerSample computes t[b] += coeffs[b] * o[b] for every batch element b.
func (t *Tensor) AddScaledPerSample(coeffs []float64, o *Tensor) error {
	if err := mustMatch(t, o); err != nil {
		return err
	}
	if len(coeffs) != t.Batch() {
		return fmt.Errorf("%w: %d coefficients for batch %d", ErrShapeMismatch, len(coeffs), t.Batch())
	}
	n := t.SampleLen()
	for b, c := range coeffs {
		floats.AddScaled(t.Data[b*n:(b+1)*n], c, o.Data[b*n:(b+1)*n])
	}
	return nil
}

// Std is the sample standard deviation over all values (N-1 denominator).
func (t *Tensor) Std() float64 {
	if len(t.Data) < 2 {
		return math.NaN()
	}
	return stat.StdDev(t.Data, nil)
}

func (t *Tensor) Equal(o *Tensor) bool {
	return t.SameShape(o) && floats.Equal(t.Data, o.Data)
}

func (t *Tensor) EqualApprox(o *Tensor, tol float64) bool {
	return t.SameShape(o) && floats.EqualApprox(t.Data, o.Data, tol)
}
