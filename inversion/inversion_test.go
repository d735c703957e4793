package inversion

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"img2img_alt/latent"
	"img2img_alt/processing"
)

// logDenoiser is a small closed-form denoiser: sigmas evenly spaced from 8 down to 0.5,
// timestep = log(sigma), CompVis scalings.
type logDenoiser struct {
	short bool
}

func (d logDenoiser) Sigmas(n int) []float64 {
	if d.short {
		n--
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = 8
		if n > 1 {
			out[i] = 8 - 7.5*float64(i)/float64(n-1)
		}
	}
	return out
}

func (logDenoiser) Scalings(sigma []float64) (cOut, cIn []float64) {
	for _, s := range sigma {
		cOut = append(cOut, -s)
		cIn = append(cIn, 1/math.Sqrt(s*s+1))
	}
	return cOut, cIn
}

func (logDenoiser) SigmaToT(sigma []float64) []float64 {
	out := make([]float64, len(sigma))
	for i, s := range sigma {
		out[i] = math.Log(s)
	}
	return out
}

type call struct {
	t []float64
	x []float64
}

// linearModel predicts eps = 0.1*x + 0.01*t + cond[0] per batch element.
type linearModel struct {
	calls []call
	err   error
	hook  func(n int)
}

func eps(x, t, c0 float64) float64 { return 0.1*x + 0.01*t + c0 }

func (m *linearModel) ApplyModel(_ context.Context, x *latent.Tensor, t []float64, cond *latent.Tensor) (*latent.Tensor, error) {
	m.calls = append(m.calls, call{t: append([]float64(nil), t...), x: append([]float64(nil), x.Data...)})
	if m.hook != nil {
		m.hook(len(m.calls))
	}
	if m.err != nil {
		return nil, m.err
	}
	out := latent.New(x.Shape...)
	n := x.SampleLen()
	cn := cond.SampleLen()
	for b := range x.Batch() {
		for j := range n {
			out.Data[b*n+j] = eps(x.Data[b*n+j], t[b], cond.Data[b*cn])
		}
	}
	return out, nil
}

type counter struct{ steps, jobs int }

func (c *counter) OnStep(int, int) { c.steps++ }
func (c *counter) OnJob(int, int)  { c.jobs++ }

type previews struct{ n int }

func (p *previews) StoreLatent(*latent.Tensor) { p.n++ }

func fixture() (*latent.Tensor, Params) {
	x, _ := latent.FromData([]float64{0.3, -1.2, 0.8, 0.05, -0.4, 1.7}, 1, 2, 1, 3)
	cond, _ := latent.FromData([]float64{0.2, 0.9}, 1, 1, 2)
	uncond, _ := latent.FromData([]float64{-0.1, 0.4}, 1, 1, 2)
	return x, Params{Cond: cond, Uncond: uncond, CFGScale: 1.5, Steps: 6}
}

// reference integrates the schedule element by element, straight from the formulas.
func reference(x *latent.Tensor, p Params) []float64 {
	d := logDenoiser{}
	desc := d.Sigmas(p.Steps)
	s := make([]float64, len(desc))
	for i := range desc {
		s[i] = desc[len(desc)-1-i]
	}
	cur := append([]float64(nil), x.Data...)
	for i := 1; i < len(s); i++ {
		sigIn, sigT, div := s[i], s[i], s[i]
		if p.SigmaAdjustment {
			sigIn, sigT, div = s[i-1], s[i-1], s[i-1]
			if i == 1 {
				sigT, div = s[i], 2*s[i]
			}
		}
		cOut, cIn := -sigIn, 1/math.Sqrt(sigIn*sigIn+1)
		t := math.Log(sigT)
		next := make([]float64, len(cur))
		for j, v := range cur {
			du := v + eps(v*cIn, t, p.Uncond.Data[0])*cOut
			dc := v + eps(v*cIn, t, p.Cond.Data[0])*cOut
			den := du + (dc-du)*p.CFGScale
			next[j] = v + (v-den)/div*(s[i]-s[i-1])
		}
		cur = next
	}
	if p.SigmaAdjustment {
		for j := range cur {
			cur[j] /= s[len(s)-1]
		}
		return cur
	}
	final, _ := latent.FromData(cur, x.Shape...)
	std := final.Std()
	for j := range cur {
		cur[j] /= std
	}
	return cur
}

func newEngine(t *testing.T, m *linearModel, preview LatentStore) *Engine {
	t.Helper()
	e, err := New(Config{Model: m, Denoiser: logDenoiser{}, Preview: preview})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return e
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{Denoiser: logDenoiser{}}); err == nil {
		t.Fatalf("expected error for missing model")
	}
	if _, err := New(Config{Model: &linearModel{}}); err == nil {
		t.Fatalf("expected error for missing denoiser")
	}
}

func TestStepAndProgressCounts(t *testing.T) {
	for _, steps := range []int{2, 3, 10, 50} {
		m := &linearModel{}
		c := &counter{}
		pv := &previews{}
		x, p := fixture()
		p.Steps = steps

		state := processing.NewState(c)
		if _, err := newEngine(t, m, pv).FindNoise(context.Background(), state, x, p); err != nil {
			t.Fatalf("steps=%d: unexpected error: %v", steps, err)
		}
		if len(m.calls) != steps-1 {
			t.Fatalf("steps=%d: expected %d forward passes, got %d", steps, steps-1, len(m.calls))
		}
		if c.steps != steps-1 || c.jobs != 1 {
			t.Fatalf("steps=%d: expected %d step events and 1 job event, got %d and %d", steps, steps-1, c.steps, c.jobs)
		}
		if pv.n != steps-1 {
			t.Fatalf("steps=%d: expected %d previews, got %d", steps, steps-1, pv.n)
		}
		if state.SamplingSteps != steps {
			t.Fatalf("steps=%d: sampling steps recorded as %d", steps, state.SamplingSteps)
		}
	}
}

func TestPlainMatchesReference(t *testing.T) {
	m := &linearModel{}
	x, p := fixture()
	got, err := newEngine(t, m, nil).FindNoise(context.Background(), nil, x, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(reference(x, p), got.Data, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("plain inversion (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1.0, got.Std(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("plain output must have unit std (-want +got):\n%s", diff)
	}
}

func TestSigmaAdjustedMatchesReference(t *testing.T) {
	m := &linearModel{}
	x, p := fixture()
	p.SigmaAdjustment = true
	got, err := newEngine(t, m, nil).FindNoise(context.Background(), nil, x, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(reference(x, p), got.Data, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("sigma adjusted inversion (-want +got):\n%s", diff)
	}
}

func TestSigmaAdjustedTimesteps(t *testing.T) {
	x, p := fixture()
	p.Steps = 4
	asc := logDenoiser{}.Sigmas(p.Steps)
	asc[0], asc[3] = asc[3], asc[0]
	asc[1], asc[2] = asc[2], asc[1]

	plain := &linearModel{}
	if _, err := newEngine(t, plain, nil).FindNoise(context.Background(), nil, x, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.SigmaAdjustment = true
	adjusted := &linearModel{}
	if _, err := newEngine(t, adjusted, nil).FindNoise(context.Background(), nil, x, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantPlain := []float64{math.Log(asc[1]), math.Log(asc[2]), math.Log(asc[3])}
	wantAdjusted := []float64{math.Log(asc[1]), math.Log(asc[1]), math.Log(asc[2])}
	for i := range 3 {
		if plain.calls[i].t[0] != wantPlain[i] || plain.calls[i].t[1] != wantPlain[i] {
			t.Fatalf("plain step %d: t = %v, want %v", i+1, plain.calls[i].t, wantPlain[i])
		}
		if adjusted.calls[i].t[0] != wantAdjusted[i] {
			t.Fatalf("adjusted step %d: t = %v, want %v", i+1, adjusted.calls[i].t, wantAdjusted[i])
		}
	}

	// The first adjusted step scales its input with the lowest sigma.
	cIn := 1 / math.Sqrt(asc[0]*asc[0]+1)
	if diff := cmp.Diff(x.Data[0]*cIn, adjusted.calls[0].x[0], cmpopts.EquateApprox(0, 1e-15)); diff != "" {
		t.Fatalf("adjusted first step input scaling (-want +got):\n%s", diff)
	}
}

func TestVariantsDiffer(t *testing.T) {
	x, p := fixture()
	plain, err := newEngine(t, &linearModel{}, nil).FindNoise(context.Background(), nil, x, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.SigmaAdjustment = true
	adjusted, err := newEngine(t, &linearModel{}, nil).FindNoise(context.Background(), nil, x, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plain.EqualApprox(adjusted, 1e-9) {
		t.Fatalf("sigma adjustment should change the result")
	}
}

func TestInputNotModified(t *testing.T) {
	x, p := fixture()
	before := x.Clone()
	if _, err := newEngine(t, &linearModel{}, nil).FindNoise(context.Background(), nil, x, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !x.Equal(before) {
		t.Fatalf("FindNoise modified its input")
	}
}

func TestSingleStep(t *testing.T) {
	m := &linearModel{}
	x, p := fixture()
	p.Steps = 1
	got, err := newEngine(t, m, nil).FindNoise(context.Background(), nil, x, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.calls) != 0 {
		t.Fatalf("expected no forward passes, got %d", len(m.calls))
	}
	want := x.Clone().Scale(1 / x.Std())
	if !got.EqualApprox(want, 1e-12) {
		t.Fatalf("expected x/std(x), got %v", got.Data)
	}
}

func TestInvalidSteps(t *testing.T) {
	for _, steps := range []int{0, -3} {
		m := &linearModel{}
		x, p := fixture()
		p.Steps = steps
		_, err := newEngine(t, m, nil).FindNoise(context.Background(), nil, x, p)
		if !errors.Is(err, ErrInvalidSteps) {
			t.Fatalf("steps=%d: expected ErrInvalidSteps, got %v", steps, err)
		}
	}
}

func TestScheduleLengthChecked(t *testing.T) {
	x, p := fixture()
	e, err := New(Config{Model: &linearModel{}, Denoiser: logDenoiser{short: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.FindNoise(context.Background(), nil, x, p); err == nil {
		t.Fatalf("expected error for a short schedule")
	}
}

func TestModelErrorPropagates(t *testing.T) {
	boom := errors.New("out of memory")
	m := &linearModel{err: boom}
	x, p := fixture()
	_, err := newEngine(t, m, nil).FindNoise(context.Background(), nil, x, p)
	if !errors.Is(err, boom) {
		t.Fatalf("expected model error, got %v", err)
	}
	if len(m.calls) != 1 {
		t.Fatalf("expected no retry, got %d calls", len(m.calls))
	}
}

func TestInterruptStopsLoop(t *testing.T) {
	state := processing.NewState()
	m := &linearModel{hook: func(n int) {
		if n == 2 {
			state.Interrupt()
		}
	}}
	x, p := fixture()
	_, err := newEngine(t, m, nil).FindNoise(context.Background(), state, x, p)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if len(m.calls) != 2 {
		t.Fatalf("expected loop to stop after 2 passes, got %d", len(m.calls))
	}
	if state.JobNo != 0 {
		t.Fatalf("interrupted job must not be marked complete")
	}
}

func TestContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &linearModel{hook: func(n int) {
		if n == 1 {
			cancel()
		}
	}}
	x, p := fixture()
	_, err := newEngine(t, m, nil).FindNoise(ctx, nil, x, p)
	if !errors.Is(err, ErrInterrupted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected interrupted and canceled, got %v", err)
	}
	if len(m.calls) != 1 {
		t.Fatalf("expected 1 pass before cancellation, got %d", len(m.calls))
	}
}
