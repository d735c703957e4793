package latent

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestFromDataShape(t *testing.T) {
	if _, err := FromData([]float64{1, 2, 3}, 1, 2, 2); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	x, err := FromData([]float64{1, 2, 3, 4}, 1, 1, 2, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x.Batch() != 1 || x.SampleLen() != 4 {
		t.Fatalf("unexpected batch %d / sample len %d", x.Batch(), x.SampleLen())
	}
}

func TestConcatAndChunk(t *testing.T) {
	a, _ := FromData([]float64{1, 2}, 1, 2)
	b, _ := FromData([]float64{3, 4}, 1, 2)

	c, err := Concat(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]int{2, 2}, c.Shape); diff != "" {
		t.Fatalf("shape mismatch (-want +got):\n%s", diff)
	}

	first, second, err := c.Chunk2()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Equal(a) || !second.Equal(b) {
		t.Fatalf("chunks do not match inputs: %v %v", first.Data, second.Data)
	}

	odd, _ := FromData([]float64{1, 2, 3}, 3, 1)
	if _, _, err := odd.Chunk2(); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch for odd batch, got %v", err)
	}

	wrong, _ := FromData([]float64{1, 2, 3}, 1, 3)
	if _, err := Concat(a, wrong); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestPerSampleOps(t *testing.T) {
	x, _ := FromData([]float64{1, 1, 2, 2}, 2, 2)
	if err := x.ScalePerSample([]float64{3, 0.5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]float64{3, 3, 1, 1}, x.Data); diff != "" {
		t.Fatalf("ScalePerSample (-want +got):\n%s", diff)
	}

	o, _ := FromData([]float64{1, 1, 1, 1}, 2, 2)
	if err := x.AddScaledPerSample([]float64{-1, 2}, o); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]float64{2, 2, 3, 3}, x.Data); diff != "" {
		t.Fatalf("AddScaledPerSample (-want +got):\n%s", diff)
	}

	if err := x.ScalePerSample([]float64{1}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestStdMatchesSampleDeviation(t *testing.T) {
	x, _ := FromData([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 1, 8)
	want := math.Sqrt(32.0 / 7.0)
	if diff := cmp.Diff(want, x.Std(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("Std (-want +got):\n%s", diff)
	}
}

func TestFingerprintTruncatesTowardZero(t *testing.T) {
	x, _ := FromData([]float64{0.19, -0.19, 1.25, -1.25}, 1, 4)
	fp := x.Fingerprint(10)
	if diff := cmp.Diff([]int{1, -1, 12, -12}, fp.Values); diff != "" {
		t.Fatalf("fingerprint (-want +got):\n%s", diff)
	}

	y := x.Clone()
	y.Data[2] += 5
	other := y.Fingerprint(10)
	if got := fp.Distance(other); got != 50 {
		t.Fatalf("expected distance 50, got %d", got)
	}
	if !fp.Close(other, 100) {
		t.Fatalf("expected fingerprints within 100 to be close")
	}
	if fp.Close(other, 50) {
		t.Fatalf("threshold must be exclusive")
	}

	reshaped, _ := FromData(append([]float64(nil), x.Data...), 2, 2)
	if fp.Close(reshaped.Fingerprint(10), 100) {
		t.Fatalf("fingerprints with different shapes must not be close")
	}
}

func TestFingerprintNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 1e300} {
		x, _ := FromData([]float64{0.5, v}, 1, 2)
		fp := x.Fingerprint(10)
		if fp.Valid() {
			t.Fatalf("fingerprint of %v must be invalid", v)
		}
		if fp.Close(x.Fingerprint(10), 100) {
			t.Fatalf("fingerprint of %v must never be close, not even to itself", v)
		}
	}

	x, _ := FromData([]float64{0.5, -3}, 1, 2)
	if !x.Fingerprint(10).Valid() {
		t.Fatalf("finite fingerprint must be valid")
	}
}

func TestBorrowRelease(t *testing.T) {
	a := Borrow(2, 3)
	for i := range a.Data {
		a.Data[i] = float64(i + 1)
	}
	Release(a)
	if a.Data != nil {
		t.Fatalf("released tensor should drop its storage")
	}

	b := Borrow(2, 3)
	defer Release(b)
	for i, v := range b.Data {
		if v != 0 {
			t.Fatalf("borrowed tensor not zeroed at %d: %v", i, v)
		}
	}
	if b.Len() != 6 {
		t.Fatalf("expected 6 values, got %d", b.Len())
	}
}
