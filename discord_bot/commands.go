package discord_bot

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/bwmarrin/discordgo"

	"img2img_alt/scripts"
)

type CommandOption = string

const (
	imageOption             CommandOption = "image"
	promptOption            CommandOption = "prompt"
	negativeOption          CommandOption = "negative_prompt"
	samplerOption           CommandOption = "sampler"
	stepOption              CommandOption = "steps"
	cfgScaleOption          CommandOption = "cfg_scale"
	denoisingStrengthOption CommandOption = "denoising_strength"
	seedOption              CommandOption = "seed"
)

// maxOptionName is Discord's limit on option names.
const maxOptionName = 32

var commandOptions = []*discordgo.ApplicationCommandOption{
	{
		Type:        discordgo.ApplicationCommandOptionAttachment,
		Name:        imageOption,
		Description: "The image to regenerate",
		Required:    true,
	},
	{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        promptOption,
		Description: "The text prompt for the new image",
		Required:    true,
	},
	{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        negativeOption,
		Description: "Negative prompt",
	},
	{
		Type:         discordgo.ApplicationCommandOptionString,
		Name:         samplerOption,
		Description:  "sampler. default=Euler",
		Autocomplete: true,
	},
	{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        stepOption,
		Description: "Number of iterations to sample with. Default is 50",
		MinValue:    ptr(1.0),
		MaxValue:    150,
	},
	{
		Type:        discordgo.ApplicationCommandOptionNumber,
		Name:        cfgScaleOption,
		Description: "value for cfg. default=2.0",
	},
	{
		Type:        discordgo.ApplicationCommandOptionNumber,
		Name:        denoisingStrengthOption,
		Description: "How much to change the image. default=1.0",
		MinValue:    ptr(0.0),
		MaxValue:    1,
	},
	{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        seedOption,
		Description: "Seed for the new image. default=-1 (random)",
	},
}

func ptr[T any](v T) *T { return &v }

// OptionName turns a widget label into a valid option name: lower case, words joined by
// underscores and cut at a word boundary to fit Discord's limit.
func OptionName(label string) string {
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	var name string
	for _, word := range words {
		next := word
		if name != "" {
			next = name + "_" + word
		}
		if len(next) > maxOptionName {
			break
		}
		name = next
	}
	if name == "" && len(words) > 0 {
		name = words[0][:maxOptionName]
	}
	return name
}

// Command builds the slash command for a script: the request options followed by one option
// per widget of the script's img2img UI.
func Command(name string, script scripts.Script) (*discordgo.ApplicationCommand, error) {
	options := make([]*discordgo.ApplicationCommandOption, 0, len(commandOptions)+6)
	options = append(options, commandOptions...)

	seen := make(map[string]bool, len(options))
	for _, o := range options {
		seen[o.Name] = true
	}

	for _, w := range script.UI(true) {
		o, err := widgetOption(w)
		if err != nil {
			return nil, err
		}
		if seen[o.Name] {
			return nil, fmt.Errorf("option %q for widget %q is already used", o.Name, w.Label)
		}
		seen[o.Name] = true
		options = append(options, o)
	}

	return &discordgo.ApplicationCommand{
		Name:        name,
		Description: script.Title(),
		Options:     options,
		Type:        discordgo.ChatApplicationCommand,
	}, nil
}

func widgetOption(w scripts.Widget) (*discordgo.ApplicationCommandOption, error) {
	o := &discordgo.ApplicationCommandOption{
		Name:        OptionName(w.Label),
		Description: fmt.Sprintf("%s. default=%v", w.Label, w.Value),
	}
	if o.Name == "" {
		return nil, fmt.Errorf("widget label %q has no usable characters", w.Label)
	}
	if len(o.Description) > 100 {
		o.Description = w.Label[:min(len(w.Label), 100)]
	}

	switch w.Kind {
	case scripts.Textbox:
		o.Type = discordgo.ApplicationCommandOptionString
	case scripts.Slider:
		o.Type = discordgo.ApplicationCommandOptionNumber
		if w.Integer() {
			o.Type = discordgo.ApplicationCommandOptionInteger
		}
		o.MinValue = ptr(w.Min)
		o.MaxValue = w.Max
	case scripts.Checkbox:
		o.Type = discordgo.ApplicationCommandOptionBoolean
	default:
		return nil, fmt.Errorf("unsupported widget %v for %q", w.Kind, w.Label)
	}
	return o, nil
}

// Values returns the script values in UI order, taking each from its option when the user set
// it and from the widget default otherwise.
func Values(widgets []scripts.Widget, options map[string]*discordgo.ApplicationCommandInteractionDataOption) ([]any, error) {
	values := make([]any, len(widgets))
	for i, w := range widgets {
		option, ok := options[OptionName(w.Label)]
		if !ok {
			values[i] = w.Value
			continue
		}

		want, err := widgetOption(w)
		if err != nil {
			return nil, err
		}
		if option.Type != want.Type {
			return nil, fmt.Errorf("option %q: expected %v, got %v", option.Name, want.Type, option.Type)
		}

		switch option.Type {
		case discordgo.ApplicationCommandOptionString:
			values[i] = option.StringValue()
		case discordgo.ApplicationCommandOptionInteger:
			values[i] = int(option.IntValue())
		case discordgo.ApplicationCommandOptionNumber:
			values[i] = option.FloatValue()
		case discordgo.ApplicationCommandOptionBoolean:
			values[i] = option.BoolValue()
		}
	}
	return values, nil
}
