package discord_bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sahilm/fuzzy"

	"img2img_alt/entities"
	"img2img_alt/repositories/image_generations"
	"img2img_alt/scripts"
	"img2img_alt/scripts/img2imgalt"
	"img2img_alt/stable_diffusion_api"
	"img2img_alt/utils"
)

type Bot interface {
	Start(ctx context.Context)
}

type botImpl struct {
	developmentMode    bool
	botSession         *discordgo.Session
	// jobs is cancelled when Start returns, aborting requests still in flight.
	jobs               context.Context
	cancelJobs         context.CancelFunc
	guildID            string
	commands           map[string]scripts.Script
	registeredCommands []*discordgo.ApplicationCommand
	removeCommands     bool
	stableDiffusionAPI stable_diffusion_api.StableDiffusionAPI
	generations        image_generations.Repository
}

type Config struct {
	DevelopmentMode    bool
	BotToken           string
	GuildID            string
	Command            string
	RemoveCommands     bool
	StableDiffusionAPI stable_diffusion_api.StableDiffusionAPI
	// Scripts defaults to a registry holding only img2img alternative test.
	Scripts *scripts.Registry
	// Generations is optional; without it runs are not recorded.
	Generations image_generations.Repository
}

func New(cfg Config) (Bot, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("missing bot token")
	}
	if cfg.GuildID == "" {
		return nil, errors.New("missing guild ID")
	}
	if cfg.Command == "" {
		return nil, errors.New("missing command")
	}
	if cfg.StableDiffusionAPI == nil {
		return nil, errors.New("missing stable diffusion api")
	}
	if cfg.Scripts == nil {
		registry, err := DefaultScripts()
		if err != nil {
			return nil, err
		}
		cfg.Scripts = registry
	}

	commands, err := Commands(cfg.Command, cfg.DevelopmentMode, cfg.Scripts)
	if err != nil {
		return nil, err
	}
	log.Printf("Registered scripts: %v", cfg.Scripts.Titles())

	botSession, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, err
	}
	token = cfg.BotToken

	botSession.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Printf("Logged in as: %v#%v", s.State.User.Username, s.State.User.Discriminator)
	})
	if err := botSession.Open(); err != nil {
		return nil, err
	}

	bot := newBot(botSession, cfg)
	err = bot.register(commands, func(command *discordgo.ApplicationCommand) (*discordgo.ApplicationCommand, error) {
		return botSession.ApplicationCommandCreate(botSession.State.User.ID, cfg.GuildID, command)
	})
	if err != nil {
		return nil, err
	}

	botSession.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		switch i.Type {
		case discordgo.InteractionApplicationCommand, discordgo.InteractionApplicationCommandAutocomplete:
		default:
			return
		}
		script, ok := bot.commands[i.ApplicationCommandData().Name]
		if !ok {
			log.Printf("Unknown command '%v'", i.ApplicationCommandData().Name)
			return
		}
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			bot.processCommand(s, i, script)
		case discordgo.InteractionApplicationCommandAutocomplete:
			bot.processAutocomplete(s, i)
		}
	})

	return bot, nil
}

func newBot(botSession *discordgo.Session, cfg Config) *botImpl {
	jobs, cancelJobs := context.WithCancel(context.Background())
	return &botImpl{
		developmentMode:    cfg.DevelopmentMode,
		botSession:         botSession,
		jobs:               jobs,
		cancelJobs:         cancelJobs,
		guildID:            cfg.GuildID,
		commands:           make(map[string]scripts.Script),
		removeCommands:     cfg.RemoveCommands,
		stableDiffusionAPI: cfg.StableDiffusionAPI,
		generations:        cfg.Generations,
	}
}

// register creates the commands through create. When one fails the session is torn down.
func (b *botImpl) register(commands []ScriptCommand, create func(*discordgo.ApplicationCommand) (*discordgo.ApplicationCommand, error)) error {
	for _, c := range commands {
		log.Printf("Adding command '%s'...", c.Command.Name)
		registered, err := create(c.Command)
		if err != nil {
			if teardownErr := b.teardown(); teardownErr != nil {
				log.Printf("Error tearing down bot: %v", teardownErr)
			}
			return fmt.Errorf("cannot create '%v' command: %w", c.Command.Name, err)
		}
		b.registeredCommands = append(b.registeredCommands, registered)
		b.commands[c.Command.Name] = c.Script
	}
	return nil
}

// DefaultScripts returns a registry with img2img alternative test. The script only describes
// its options here; generation happens on the WebUI.
func DefaultScripts() (*scripts.Registry, error) {
	script, err := img2imgalt.New(img2imgalt.Config{Host: remoteHost{}})
	if err != nil {
		return nil, err
	}
	return scripts.NewRegistry(script)
}

type ScriptCommand struct {
	Command *discordgo.ApplicationCommand
	Script  scripts.Script
}

// Commands builds one slash command per img2img script. A single script gets the command name
// as is, otherwise the name is suffixed with the script's title.
func Commands(name string, developmentMode bool, registry *scripts.Registry) ([]ScriptCommand, error) {
	if developmentMode {
		name = "dev_" + name
	}

	visible := registry.Visible(true)
	if len(visible) == 0 {
		return nil, errors.New("no img2img scripts registered")
	}

	commands := make([]ScriptCommand, 0, len(visible))
	for _, script := range visible {
		commandName := name
		if len(visible) > 1 {
			commandName = OptionName(name + " " + script.Title())
		}
		command, err := Command(commandName, script)
		if err != nil {
			return nil, fmt.Errorf("error building command for %q: %w", script.Title(), err)
		}
		commands = append(commands, ScriptCommand{Command: command, Script: script})
	}
	return commands, nil
}

// Start blocks until ctx is done, then cancels running jobs and tears the session down.
func (b *botImpl) Start(ctx context.Context) {
	<-ctx.Done()
	b.cancelJobs()

	if err := b.teardown(); err != nil {
		log.Printf("Error tearing down bot: %v", err)
	}
}

func (b *botImpl) teardown() error {
	if b.removeCommands {
		log.Printf("Removing all commands added by bot...")

		for _, v := range b.registeredCommands {
			log.Printf("Removing command '%v'...", v.Name)

			if err := b.botSession.ApplicationCommandDelete(b.botSession.State.User.ID, b.guildID, v.ID); err != nil {
				log.Printf("Cannot delete '%v' command: %v", v.Name, err)
			}
		}
	}

	return b.botSession.Close()
}

func (b *botImpl) processCommand(s *discordgo.Session, i *discordgo.InteractionCreate, script scripts.Script) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		log.Printf("Error responding to interaction: %v", err)
		return
	}

	data := i.ApplicationCommandData()
	options := utils.GetOpts(data)

	values, err := Values(script.UI(true), options)
	if err != nil {
		errorEdit(s, i.Interaction, err)
		return
	}
	// Only img2img alternative test runs are validated locally and recorded.
	var args *img2imgalt.Args
	if script.Title() == img2imgalt.Title {
		parsed, err := img2imgalt.ParseArgs(values...)
		if err == nil {
			err = parsed.Validate()
		}
		if err != nil {
			errorEdit(s, i.Interaction, err)
			return
		}
		args = &parsed
	}

	ctx := b.jobs
	req, err := b.request(ctx, data, options)
	if err != nil {
		errorEdit(s, i.Interaction, err)
		return
	}

	content := fmt.Sprintf("Running %s...", script.Title())
	_, _ = s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content})

	var resp *entities.ImageToImageResponse
	if args != nil {
		resp, err = b.stableDiffusionAPI.AlternativeTest(ctx, req, *args)
	} else {
		resp, err = b.stableDiffusionAPI.RunScript(ctx, req, script.Title(), values)
	}
	if err != nil {
		errorEdit(s, i.Interaction, err)
		return
	}

	files, err := imageFiles(resp.Images)
	if err != nil {
		errorEdit(s, i.Interaction, err)
		return
	}

	content = req.Prompt
	if user := utils.GetUser(i); user != nil {
		content = fmt.Sprintf("<@%s> %s", user.ID, req.Prompt)
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
		Files:   files,
	}); err != nil {
		log.Printf("Error editing interaction: %v", err)
	}

	if args != nil {
		b.record(ctx, req, *args, resp)
	}
}

// request builds the img2img request from the non-script options.
func (b *botImpl) request(ctx context.Context, data discordgo.ApplicationCommandInteractionData, options map[string]*discordgo.ApplicationCommandInteractionDataOption) (*entities.ImageToImageRequest, error) {
	option, ok := options[imageOption]
	if !ok || data.Resolved == nil {
		return nil, errors.New("missing image")
	}
	prompt, ok := options[promptOption]
	if !ok {
		return nil, errors.New("missing prompt")
	}
	attachment, ok := data.Resolved.Attachments[option.StringValue()]
	if !ok {
		return nil, errors.New("missing image attachment")
	}
	if !strings.HasPrefix(attachment.ContentType, "image") {
		return nil, fmt.Errorf("attachment %q is not an image", attachment.Filename)
	}

	image, err := utils.DownloadImageAsBase64(ctx, attachment.URL)
	if err != nil {
		return nil, fmt.Errorf("error downloading image: %w", err)
	}
	width, height, err := utils.GetBase64ImageSize(image)
	if err != nil {
		return nil, fmt.Errorf("error reading image: %w", err)
	}

	req := &entities.ImageToImageRequest{
		Prompt:            prompt.StringValue(),
		InitImages:        []string{image},
		Width:             &width,
		Height:            &height,
		DenoisingStrength: ptr(1.0),
		CFGScale:          ptr(2.0),
		Steps:             ptr(50),
		SamplerName:       ptr("Euler"),
	}
	if o, ok := options[negativeOption]; ok {
		req.NegativePrompt = ptr(o.StringValue())
	}
	if o, ok := options[stepOption]; ok {
		req.Steps = ptr(int(o.IntValue()))
	}
	if o, ok := options[cfgScaleOption]; ok {
		req.CFGScale = ptr(o.FloatValue())
	}
	if o, ok := options[denoisingStrengthOption]; ok {
		req.DenoisingStrength = ptr(o.FloatValue())
	}
	if o, ok := options[seedOption]; ok {
		req.Seed = ptr(o.IntValue())
	}
	if o, ok := options[samplerOption]; ok {
		samplers, err := b.stableDiffusionAPI.GetSamplers(ctx)
		if err != nil {
			return nil, err
		}
		name, err := samplers.Resolve(o.StringValue())
		if err != nil {
			return nil, err
		}
		req.SamplerName = &name
	}
	return req, nil
}

func (b *botImpl) record(ctx context.Context, req *entities.ImageToImageRequest, args img2imgalt.Args, resp *entities.ImageToImageResponse) {
	if b.generations == nil {
		return
	}
	generation, err := image_generations.FromResponse(req, args, resp)
	if err != nil {
		log.Printf("Error reading generation info: %v", err)
		return
	}
	if _, err := b.generations.Create(ctx, generation); err != nil {
		log.Printf("Error recording generation: %v", err)
	}
}

func (b *botImpl) processAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := utils.GetOpts(i.ApplicationCommandData())
	option, ok := options[samplerOption]
	if !ok || !option.Focused {
		return
	}

	samplers, err := b.stableDiffusionAPI.GetSamplers(b.jobs)
	if err != nil {
		log.Printf("Error retrieving samplers: %v", err)
		return
	}

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, 25)
	if input := option.StringValue(); input != "" {
		for _, match := range fuzzy.FindFrom(input, samplers) {
			choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: match.Str, Value: match.Str})
		}
	} else {
		for _, sampler := range samplers {
			choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: sampler.Name, Value: sampler.Name})
		}
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: choices[:min(len(choices), 25)],
		},
	}); err != nil {
		log.Printf("Error responding to autocomplete: %v", err)
	}
}
