package stable_diffusion_api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"img2img_alt/entities"
	"img2img_alt/scripts/img2imgalt"
)

const DeadAPI = "API is not running"

// DefaultScriptName is the title the WebUI registers img2img alternative test under. The
// img2img endpoint matches script_name against the whole title, lowercased.
const DefaultScriptName = "改图测试/img2img alternative test"

type apiImplementation struct {
	host       string
	client     *http.Client
	scriptName string

	mu       sync.Mutex
	samplers Samplers
}

type Config struct {
	Host string
	// Timeout bounds a whole request, inversion included. Defaults to 10 minutes.
	Timeout time.Duration
	// ScriptName is sent as script_name by AlternativeTest. Defaults to DefaultScriptName.
	ScriptName string
}

func New(cfg Config) (StableDiffusionAPI, error) {
	if cfg.Host == "" {
		return nil, errors.New("missing host")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.ScriptName == "" {
		cfg.ScriptName = DefaultScriptName
	}

	return &apiImplementation{
		host: strings.TrimSuffix(cfg.Host, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		scriptName: cfg.ScriptName,
	}, nil
}

func (api *apiImplementation) Host(url ...string) string {
	return api.host + strings.Join(url, "")
}

// Alive reports whether the WebUI answers on its root URL.
func (api *apiImplementation) Alive() bool {
	resp, err := api.client.Get(api.host)
	if err != nil {
		return false
	}
	closeResponseBody(resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (api *apiImplementation) ImageToImageRequest(ctx context.Context, req *entities.ImageToImageRequest) (*entities.ImageToImageResponse, error) {
	if req == nil {
		return nil, errors.New("missing request")
	}
	if !api.Alive() {
		return nil, errors.New(DeadAPI)
	}

	response := new(entities.ImageToImageResponse)
	if err := POST(ctx, api.client, api.Host("/sdapi/v1/img2img"), req, response); err != nil {
		return nil, fmt.Errorf("error with img2img request: %w", err)
	}
	return response, nil
}

// AlternativeTest runs req through the img2img alternative test script. The WebUI forces a
// single image per request while the script runs.
func (api *apiImplementation) AlternativeTest(ctx context.Context, req *entities.ImageToImageRequest, args img2imgalt.Args) (*entities.ImageToImageResponse, error) {
	if req == nil {
		return nil, errors.New("missing request")
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}
	if len(req.InitImages) == 0 {
		return nil, errors.New("missing init image")
	}

	req.BatchSize = 1
	req.NIter = 1

	log.Printf("Submitting %q with %d decode steps (randomness %.2f, sigma adjustment %v)",
		req.Prompt, args.Steps, args.Randomness, args.SigmaAdjustment)
	return api.RunScript(ctx, req, api.scriptName, args.Values())
}

// RunScript runs req through the selectable script with the given title. values are the
// script's widget values in UI order.
func (api *apiImplementation) RunScript(ctx context.Context, req *entities.ImageToImageRequest, title string, values []any) (*entities.ImageToImageResponse, error) {
	if req == nil {
		return nil, errors.New("missing request")
	}
	if title == "" {
		return nil, errors.New("missing script title")
	}
	req.ScriptName = &title
	req.ScriptArgs = values
	return api.ImageToImageRequest(ctx, req)
}

func (api *apiImplementation) GetProgress(ctx context.Context) (*entities.Progress, error) {
	return GET[entities.Progress](ctx, api.client, api.Host("/sdapi/v1/progress?skip_current_image=true"))
}

func (api *apiImplementation) Interrupt(ctx context.Context) error {
	return POST(ctx, api.client, api.Host("/sdapi/v1/interrupt"), nil, (*map[string]any)(nil))
}

// GET is a generic function to make a GET request to the API
// It returns the response body as the specified type
func GET[T any](ctx context.Context, client *http.Client, url string) (*T, error) {
	v := new(T)
	err := Do[T](ctx, client, http.MethodGet, url, nil, v)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// POST is a generic function to make a POST request to the API
// It writes to v the response body as the specified type
func POST[T any](ctx context.Context, client *http.Client, url string, body any, v *T) error {
	if body == nil {
		return Do(ctx, client, http.MethodPost, url, nil, v)
	}
	reader := new(bytes.Buffer)
	if err := json.NewEncoder(reader).Encode(body); err != nil {
		return err
	}
	return Do(ctx, client, http.MethodPost, url, reader, v)
}

func Do[T any](ctx context.Context, client *http.Client, method string, url string, body io.Reader, v *T) error {
	request, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		log.Printf("Error with API request %s %s: %v", method, url, err)
		return err
	}
	defer closeResponseBody(response.Body)

	if response.StatusCode != http.StatusOK {
		responseString := " (unknown error)"
		body, _ := io.ReadAll(response.Body)
		if len(body) > 0 {
			responseString = fmt.Sprintf("\n```json\n%s\n```", body)
		}
		return fmt.Errorf("unexpected status code: `%s`%s", response.Status, responseString)
	}

	if v == nil {
		return nil
	}

	if err := json.NewDecoder(response.Body).Decode(v); err != nil {
		return fmt.Errorf("error decoding %s response: %w", url, err)
	}

	return nil
}

func closeResponseBody(closer io.Closer) {
	if err := closer.Close(); err != nil {
		log.Printf("Error closing response body: %v", err)
	}
}
