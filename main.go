package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"img2img_alt/composite_renderer"
	"img2img_alt/databases/sqlite"
	"img2img_alt/discord_bot"
	"img2img_alt/entities"
	"img2img_alt/gui/progress"
	"img2img_alt/repositories/image_generations"
	"img2img_alt/scripts/img2imgalt"
	"img2img_alt/stable_diffusion_api"
	"img2img_alt/utils"
)

// API and storage
var (
	apiHost    = flag.String("host", "", "Host for the Automatic1111 API (env API_HOST)")
	scriptName = flag.String("script-name", stable_diffusion_api.DefaultScriptName, "Title the WebUI registers the script under (env SCRIPT_NAME)")
	dbPath     = flag.String("db", "", "Path of the sqlite history database (env DB_PATH)")
	outDir     = flag.String("out", ".", "Directory the generated images are written to")
	history    = flag.Int("history", 0, "Print the last N recorded generations and exit")
	compare    = flag.Bool("compare", false, "Also write the init image and the results side by side")
)

// Request parameters
var (
	imagePath         = flag.String("image", "", "Init image, a file path or an http(s) URL")
	prompt            = flag.String("prompt", "", "Prompt for the new image")
	negativePrompt    = flag.String("negative", "", "Negative prompt for the new image")
	samplerName       = flag.String("sampler", "Euler", "Sampler name, matched loosely against the API's samplers")
	steps             = flag.Int("steps", 50, "Sampling steps")
	cfgScale          = flag.Float64("cfg", 2.0, "CFG scale")
	denoisingStrength = flag.Float64("denoise", 1.0, "Denoising strength")
	seed              = flag.Int64("seed", -1, "Seed, -1 for random")
)

// Script parameters
var (
	scriptDefaults = img2imgalt.DefaultArgs()

	decodePrompt         = flag.String("decode-prompt", scriptDefaults.OriginalPrompt, "Original prompt used to recover the noise")
	decodeNegativePrompt = flag.String("decode-negative", scriptDefaults.OriginalNegativePrompt, "Original negative prompt used to recover the noise")
	decodeCFGScale       = flag.Float64("decode-cfg", scriptDefaults.CFGScale, "Decode CFG scale")
	decodeSteps          = flag.Int("decode-steps", scriptDefaults.Steps, "Decode steps")
	randomness           = flag.Float64("randomness", scriptDefaults.Randomness, "Share of fresh random noise, 0 to 1")
	sigmaAdjustment      = flag.Bool("sigma", scriptDefaults.SigmaAdjustment, "Sigma adjustment for finding noise for image")
)

// Bot parameters
var (
	discordMode        = flag.Bool("discord", false, "Serve the script as a Discord slash command instead of running once (env DISCORD)")
	guildID            = flag.String("guild", "", "Guild ID (env GUILD_ID)")
	botToken           = flag.String("token", "", "Bot access token (env BOT_TOKEN)")
	command            = flag.String("command", "img2img_alt", "Slash command name (env COMMAND)")
	removeCommandsFlag = flag.Bool("remove", false, "Delete all commands when bot exits (env REMOVE_COMMANDS)")
	devModeFlag        = flag.Bool("dev", false, "Start in development mode, using \"dev_\" prefixed commands instead (env DEV_MODE)")
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
		return
	}
	log.Println(".env file loaded successfully")
}

// envFallback fills flags the user did not pass from the environment.
func envFallback() {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	fallbacks := map[string]string{
		"host":        "API_HOST",
		"script-name": "SCRIPT_NAME",
		"db":          "DB_PATH",
		"discord":     "DISCORD",
		"guild":       "GUILD_ID",
		"token":       "BOT_TOKEN",
		"command":     "COMMAND",
		"remove":      "REMOVE_COMMANDS",
		"dev":         "DEV_MODE",
	}
	for name, env := range fallbacks {
		value := os.Getenv(env)
		if set[name] || value == "" {
			continue
		}
		if err := flag.Set(name, value); err != nil {
			log.Fatalf("Invalid %s=%q: %v", env, value, err)
		}
	}

	if *botToken == "YOUR_BOT_TOKEN_HERE" {
		log.Fatalf("Invalid bot token: %v\n"+
			"Did you edit the .env or run the program with -token ?", *botToken)
	}
	if *dbPath == "" {
		*dbPath = sqlite.DefaultPath
	}
}

func main() {
	flag.Parse()
	envFallback()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sqliteDB, err := sqlite.New(ctx, *dbPath)
	if err != nil {
		log.Fatalf("Failed to create sqlite database: %v", err)
	}
	defer sqliteDB.Close()

	generationRepo, err := image_generations.NewRepository(&image_generations.Config{DB: sqliteDB})
	if err != nil {
		log.Fatalf("Failed to create image generation repository: %v", err)
	}

	if *history > 0 {
		if err := printHistory(ctx, generationRepo, *history); err != nil {
			log.Fatalf("Error reading history: %v", err)
		}
		return
	}

	if *apiHost == "" {
		log.Fatalf("API host flag is required")
	}

	stableDiffusionAPI, err := stable_diffusion_api.New(stable_diffusion_api.Config{
		Host:       *apiHost,
		ScriptName: *scriptName,
	})
	if err != nil {
		log.Fatalf("Failed to create Stable Diffusion API: %v", err)
	}

	if *discordMode {
		if *botToken == "" {
			log.Fatalf("Bot token flag is required")
		}
		if *devModeFlag {
			log.Printf("Starting in development mode.. all commands prefixed with \"dev_\"")
		}
		bot, err := discord_bot.New(discord_bot.Config{
			DevelopmentMode:    *devModeFlag,
			BotToken:           *botToken,
			GuildID:            *guildID,
			Command:            *command,
			RemoveCommands:     *removeCommandsFlag,
			StableDiffusionAPI: stableDiffusionAPI,
			Generations:        generationRepo,
		})
		if err != nil {
			log.Fatalf("Error creating Discord bot: %v", err)
		}
		bot.Start(ctx)
		log.Println("Gracefully shutting down.")
		return
	}

	if err := run(ctx, stableDiffusionAPI, generationRepo); err != nil {
		log.Fatalf("Error running img2img alternative test: %v", err)
	}
}

func run(ctx context.Context, api stable_diffusion_api.StableDiffusionAPI, generations image_generations.Repository) error {
	if *imagePath == "" {
		return errors.New("image flag is required")
	}
	if !api.Alive() {
		return errors.New(stable_diffusion_api.DeadAPI)
	}

	args := img2imgalt.Args{
		OriginalPrompt:         *decodePrompt,
		OriginalNegativePrompt: *decodeNegativePrompt,
		CFGScale:               *decodeCFGScale,
		Steps:                  *decodeSteps,
		Randomness:             *randomness,
		SigmaAdjustment:        *sigmaAdjustment,
	}
	if err := args.Validate(); err != nil {
		return err
	}

	image, err := utils.ReadImageAsBase64(ctx, *imagePath)
	if err != nil {
		return fmt.Errorf("error reading image: %w", err)
	}
	width, height, err := utils.GetBase64ImageSize(image)
	if err != nil {
		return fmt.Errorf("error reading image size: %w", err)
	}

	samplers, err := api.GetSamplers(ctx)
	if err != nil {
		return fmt.Errorf("error retrieving samplers: %w", err)
	}
	sampler, err := samplers.Resolve(*samplerName)
	if err != nil {
		return err
	}
	if sampler != *samplerName {
		log.Printf("Using sampler %q for %q", sampler, *samplerName)
	}

	req := &entities.ImageToImageRequest{
		Prompt:            *prompt,
		NegativePrompt:    negativePrompt,
		InitImages:        []string{image},
		Width:             &width,
		Height:            &height,
		SamplerName:       &sampler,
		Steps:             steps,
		CFGScale:          cfgScale,
		DenoisingStrength: denoisingStrength,
		Seed:              seed,
	}

	if memory, err := stable_diffusion_api.GetMemory(); err == nil {
		log.Printf("System memory: %v", memory.RAM.Readable())
	}
	if memory, err := api.GetMemory(ctx); err == nil {
		log.Printf("API memory: %v, VRAM: %v", memory.RAM.Readable(), memory.Cuda.System.Readable())
	}

	resp, err := generate(ctx, api, req, args)
	if err != nil {
		return err
	}

	prefix := filepath.Join(*outDir, "img2img_alt_"+strconv.FormatInt(time.Now().Unix(), 10))
	withComparison := *compare && comparisonFits(width, height, len(resp.Images))
	comparison := []io.Reader{}
	if withComparison {
		reader, err := utils.Base64ToByteReader(image)
		if err != nil {
			return err
		}
		comparison = append(comparison, reader)
	}
	for i, encoded := range resp.Images {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("error decoding image %d: %w", i, err)
		}
		if err := save(prefix+"_"+strconv.Itoa(i)+".png", data); err != nil {
			return err
		}
		comparison = append(comparison, bytes.NewReader(data))
	}
	if withComparison && len(resp.Images) > 0 {
		sheet, err := composite_renderer.Comparison().TileImages(comparison)
		if err != nil {
			return fmt.Errorf("error rendering comparison: %w", err)
		}
		data, err := io.ReadAll(sheet)
		if err != nil {
			return err
		}
		if err := save(prefix+"_compare.png", data); err != nil {
			return err
		}
	}

	generation, err := image_generations.FromResponse(req, args, resp)
	if err != nil {
		log.Printf("Error reading generation info: %v", err)
		return nil
	}
	generation, err = generations.Create(ctx, generation)
	if err != nil {
		return fmt.Errorf("error recording generation: %w", err)
	}
	log.Printf("Recorded generation %d with seed %d", generation.ID, generation.Seed)
	return nil
}

func printHistory(ctx context.Context, generations image_generations.Repository, limit int) error {
	list, err := generations.List(ctx, limit)
	if err != nil {
		return err
	}
	for _, g := range list {
		fmt.Printf("#%d %s seed=%d %s steps=%d cfg=%.1f decode(steps=%d cfg=%.1f randomness=%.2f sigma=%v) %q\n",
			g.ID, humanize.Time(g.CreatedAt), g.Seed, g.SamplerName, g.Steps, g.CFGScale,
			g.Decode.Steps, g.Decode.CFGScale, g.Decode.Randomness, g.Decode.SigmaAdjustment, g.Prompt)
	}
	return nil
}

// comparisonFits reports whether the decoded images and the comparison canvas fit into free
// system memory.
func comparisonFits(width, height, results int) bool {
	memory, err := stable_diffusion_api.GetMemory()
	if err != nil {
		return true
	}
	// decoded RGBA images plus a canvas of the same total area
	size := 2 * uint64(width) * uint64(height) * 4 * uint64(results+1)
	if !memory.RAM.Fits(size) {
		log.Printf("Skipping comparison sheet, it needs %s with %v", humanize.IBytes(size), memory.RAM.Readable())
		return false
	}
	return true
}

func save(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	log.Printf("Saved %s (%s)", path, humanize.Bytes(uint64(len(data))))
	return nil
}

// generate submits the request and renders the WebUI's progress until it returns. Cancelling
// ctx interrupts the WebUI.
func generate(ctx context.Context, api stable_diffusion_api.StableDiffusionAPI, req *entities.ImageToImageRequest, args img2imgalt.Args) (*entities.ImageToImageResponse, error) {
	program := tea.NewProgram(progress.New(), tea.WithContext(ctx), tea.WithoutSignalHandler())
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			log.Printf("Error rendering progress: %v", err)
		}
	}()

	type result struct {
		resp *entities.ImageToImageResponse
		err  error
	}
	results := make(chan result, 1)
	go func() {
		// The request outlives ctx so that the WebUI can answer after an interrupt.
		resp, err := api.AlternativeTest(context.WithoutCancel(ctx), req, args)
		results <- result{resp, err}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	done := ctx.Done()
	for {
		select {
		case r := <-results:
			program.Send(progress.Percent(1))
			program.Send(progress.Done{})
			<-finished
			return r.resp, r.err
		case <-done:
			done = nil
			log.Printf("Interrupting...")
			if err := api.Interrupt(context.Background()); err != nil {
				log.Printf("Error interrupting: %v", err)
			}
		case <-ticker.C:
			p, err := api.GetProgress(ctx)
			if err != nil {
				continue
			}
			for _, msg := range progress.FromAPI(p) {
				program.Send(msg)
			}
		}
	}
}
