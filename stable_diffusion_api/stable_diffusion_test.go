package stable_diffusion_api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"img2img_alt/entities"
	"img2img_alt/inversion"
	"img2img_alt/scripts/img2imgalt"
)

type fakeWebUI struct {
	img2img     map[string]any
	samplerHits atomic.Int32
	interrupted atomic.Bool
}

func (f *fakeWebUI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("POST /sdapi/v1/img2img", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&f.img2img); err != nil {
			t.Errorf("bad img2img body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(entities.ImageToImageResponse{
			Images: []string{"aW1hZ2U="},
			Info:   `{"seed": 1235}`,
		})
	})
	mux.HandleFunc("GET /sdapi/v1/samplers", func(w http.ResponseWriter, r *http.Request) {
		f.samplerHits.Add(1)
		_ = json.NewEncoder(w).Encode([]entities.Sampler{{Name: "Euler a"}, {Name: "Euler"}, {Name: "DPM++ 2M Karras"}})
	})
	mux.HandleFunc("GET /sdapi/v1/progress", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"progress": 0.5, "eta_relative": 3, "state": {"job_count": 2, "job_no": 1, "sampling_step": 10, "sampling_steps": 20}}`))
	})
	mux.HandleFunc("POST /sdapi/v1/interrupt", func(w http.ResponseWriter, r *http.Request) {
		f.interrupted.Store(true)
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("GET /sdapi/v1/memory", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "out of memory"}`, http.StatusInternalServerError)
	})
	return mux
}

func newTestAPI(t *testing.T) (StableDiffusionAPI, *fakeWebUI) {
	t.Helper()
	return newTestAPIWithScript(t, "")
}

func newTestAPIWithScript(t *testing.T, scriptName string) (StableDiffusionAPI, *fakeWebUI) {
	t.Helper()
	f := &fakeWebUI{}
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)

	api, err := New(Config{Host: server.URL + "/", ScriptName: scriptName})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return api, f
}

func TestNewRequiresHost(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for missing host")
	}
}

func TestAlternativeTestRequest(t *testing.T) {
	tests := []struct {
		name       string
		scriptName string
		want       string
	}{
		{name: "default", want: "改图测试/img2img alternative test"},
		{name: "override", scriptName: "img2img alternative test", want: "img2img alternative test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, f := newTestAPIWithScript(t, tt.scriptName)

			args := img2imgalt.Args{
				OriginalPrompt: "a castle",
				CFGScale:       1,
				Steps:          50,
				Randomness:     0.1,
			}
			req := &entities.ImageToImageRequest{
				Prompt:     "a castle at night",
				InitImages: []string{"aW5pdA=="},
				BatchSize:  4,
				NIter:      2,
			}
			resp, err := api.AlternativeTest(context.Background(), req, args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(resp.Images) != 1 {
				t.Fatalf("expected 1 image, got %d", len(resp.Images))
			}

			want := map[string]any{
				"prompt":      "a castle at night",
				"init_images": []any{"aW5pdA=="},
				"batch_size":  1.0,
				"n_iter":      1.0,
				"script_name": tt.want,
				"script_args": []any{"a castle", "", 1.0, 50.0, 0.1, false},
			}
			if diff := cmp.Diff(want, f.img2img); diff != "" {
				t.Fatalf("request body (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAlternativeTestValidates(t *testing.T) {
	api, f := newTestAPI(t)

	req := &entities.ImageToImageRequest{InitImages: []string{"aW5pdA=="}}
	_, err := api.AlternativeTest(context.Background(), req, img2imgalt.Args{Steps: 0})
	if !errors.Is(err, inversion.ErrInvalidSteps) {
		t.Fatalf("expected ErrInvalidSteps, got %v", err)
	}
	if _, err := api.AlternativeTest(context.Background(), &entities.ImageToImageRequest{}, img2imgalt.DefaultArgs()); err == nil {
		t.Fatalf("expected error for missing init image")
	}
	if f.img2img != nil {
		t.Fatalf("invalid requests must not reach the API")
	}
}

func TestSamplersAreCached(t *testing.T) {
	api, f := newTestAPI(t)

	for range 3 {
		list, err := api.GetSamplers(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if list.Len() != 3 {
			t.Fatalf("expected 3 samplers, got %d", list.Len())
		}
	}
	if f.samplerHits.Load() != 1 {
		t.Fatalf("expected a single samplers request, got %d", f.samplerHits.Load())
	}

	list, _ := api.GetSamplers(context.Background())
	name, err := list.Resolve("2M Karras")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "DPM++ 2M Karras" {
		t.Fatalf("unexpected sampler %q", name)
	}
}

func TestProgressAndInterrupt(t *testing.T) {
	api, f := newTestAPI(t)

	progress, err := api.GetProgress(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if progress.Progress != 0.5 || progress.State.JobCount != 2 || progress.State.SamplingStep != 10 {
		t.Fatalf("unexpected progress %+v", progress)
	}

	if err := api.Interrupt(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.interrupted.Load() {
		t.Fatalf("expected interrupt to reach the API")
	}
}

func TestErrorStatusQuotesBody(t *testing.T) {
	api, _ := newTestAPI(t)

	_, err := api.GetMemory(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("error should quote status and body, got %v", err)
	}
}

func TestDeadAPI(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	api, err := New(Config{Host: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.Alive() {
		t.Fatalf("closed server must not be alive")
	}
	_, err = api.ImageToImageRequest(context.Background(), &entities.ImageToImageRequest{})
	if err == nil || err.Error() != DeadAPI {
		t.Fatalf("expected %q, got %v", DeadAPI, err)
	}
}
